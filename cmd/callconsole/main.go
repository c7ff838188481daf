// Package main is an interactive console for realtime voice sessions.
//
// It connects a multi-agent session over WebSocket or WebRTC, prints
// the live transcript, and accepts typed input alongside optional
// microphone audio.
//
// Usage:
//
//	go run ./cmd/callconsole -backend http://localhost:8080 -transport ws
//
// Environment variables:
//
//	VOICEWIRE_BACKEND   - Backend base URL minting session credentials
//	VOICEWIRE_TOOL_URL  - Optional HTTP tool backend for the lookup tool
//
// Controls:
//
//	<text>    - Send a typed message
//	/ptt      - Toggle push-to-talk mode
//	/talk     - Begin a push-to-talk turn
//	/done     - Commit the push-to-talk turn
//	/mute     - Toggle the microphone
//	/agents   - List agents and show the active one
//	/quit     - Disconnect and exit
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/voicewire/voicewire/pkg/core/agent"
	"github.com/voicewire/voicewire/pkg/core/session"
	"github.com/voicewire/voicewire/pkg/core/transcript"
	"github.com/voicewire/voicewire/pkg/metrics"
	"github.com/voicewire/voicewire/pkg/transport"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("callconsole", flag.ExitOnError)
	backend := fs.String("backend", envOr("VOICEWIRE_BACKEND", "http://localhost:8080"), "backend base URL for session credentials")
	transportKind := fs.String("transport", "ws", "transport to use: ws or webrtc")
	model := fs.String("model", "gpt-realtime", "realtime model name")
	mic := fs.Bool("mic", false, "capture microphone audio and play assistant audio")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Parse(os.Args[1:])

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	m := metrics.New("")
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	agents, startAgent := buildAgents(logger)

	var negotiator transport.Negotiator
	switch *transportKind {
	case "ws":
		negotiator = &transport.WebSocketNegotiator{Model: *model, Logger: logger}
	case "webrtc":
		negotiator = &transport.WebRTCNegotiator{Model: *model, Logger: logger}
	default:
		log.Fatalf("unknown transport %q (want ws or webrtc)", *transportKind)
	}

	store := transcript.NewStore(transcript.WithLogger(logger))
	unsubscribe := store.Subscribe(printNotification)
	defer unsubscribe()

	var speaker *speakerWriter
	deps := session.Dependencies{
		Negotiator:  negotiator,
		Credentials: &transport.CredentialClient{BaseURL: *backend, Logger: logger},
		Agents:      agents,
		StartAgent:  startAgent,
		Store:       store,
		Logger:      logger,
		Metrics:     m,
		Config: session.Config{
			Model:        *model,
			BeginPrompt:  "hi",
			ResumeNotice: "Reconnected to the session.",
		},
	}
	if *mic {
		deps.OnAudioDelta = func(pcm []byte) {
			if speaker != nil {
				speaker.Write(pcm)
			}
		}
	}

	controller, err := session.New(deps)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		controller.Disconnect()
		cancel()
		os.Exit(0)
	}()

	var micIn *micReader
	if *mic {
		in, spk, cleanup := initAudio()
		micIn = in
		speaker = spk
		defer cleanup()
	}

	if err := controller.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer controller.Disconnect()

	if micIn != nil {
		go pumpMicrophone(ctx, micIn, controller)
	}

	fmt.Printf("Connected (%s transport, agent %q). Type a message, or /quit.\n",
		*transportKind, controller.ActiveAgent().Name)

	pushToTalk := false
	micEnabled := true
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/q":
			return

		case input == "/ptt":
			pushToTalk = !pushToTalk
			controller.SetPushToTalk(pushToTalk)
			fmt.Printf("[push-to-talk: %v]\n", pushToTalk)

		case input == "/talk":
			if speaker != nil {
				speaker.Flush()
			}
			if err := controller.BeginTurn(); err != nil {
				fmt.Printf("[error] begin turn: %v\n", err)
			}

		case input == "/done":
			if err := controller.CommitTurn(); err != nil {
				fmt.Printf("[error] commit turn: %v\n", err)
			}

		case input == "/mute":
			micEnabled = !micEnabled
			controller.SetMicEnabled(micEnabled)
			fmt.Printf("[microphone: %v]\n", micEnabled)

		case input == "/agents":
			for _, name := range agents.Names() {
				marker := "  "
				if name == controller.ActiveAgent().Name {
					marker = "* "
				}
				fmt.Printf("%s%s\n", marker, name)
			}

		case strings.HasPrefix(input, "/"):
			fmt.Println("[info] commands: /ptt /talk /done /mute /agents /quit")

		default:
			if speaker != nil {
				speaker.Flush()
			}
			if err := controller.SendUserText(input); err != nil {
				fmt.Printf("[error] send: %v\n", err)
			}
		}
	}
}

// buildAgents assembles the demo agent graph: a greeter that can hand
// off to a haiku writer, plus an optional HTTP-backed lookup tool.
func buildAgents(logger *slog.Logger) (*agent.Registry, string) {
	greeter := &agent.Config{
		Name: "greeter",
		Instructions: "You are a friendly greeter. Welcome the caller, find out what " +
			"they need, and transfer them to the haiku agent if they want poetry.",
		Voice:            "sage",
		DownstreamAgents: []agent.Ref{{Name: "haiku", Description: "Responds only in haiku form."}},
	}

	haiku := &agent.Config{
		Name:         "haiku",
		Instructions: "Respond to every message with a single haiku. Nothing else.",
		Voice:        "verse",
	}

	if toolURL := os.Getenv("VOICEWIRE_TOOL_URL"); toolURL != "" {
		greeter.Tools = append(greeter.Tools, agent.Tool{
			Name:        "lookup",
			Description: "Look up an answer in the knowledge base.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"question": {"type": "string"}},
				"required": ["question"]
			}`),
		})
		greeter.RegisterHandler("lookup", agent.NewHTTPTool(agent.HTTPToolConfig{
			BaseURL: toolURL,
			ID:      "lookup",
		}))
		logger.Info("lookup tool enabled", "url", toolURL)
	}

	registry, err := agent.NewRegistry(greeter, haiku)
	if err != nil {
		log.Fatalf("build agents: %v", err)
	}
	return registry, "greeter"
}

// printNotification renders transcript changes to stdout.
func printNotification(n transcript.Notification) {
	switch n.Kind {
	case transcript.ItemAdded:
		if n.Item.Hidden {
			return
		}
		if n.Item.Kind == transcript.KindBreadcrumb {
			fmt.Printf("  -- %s\n", n.Item.Text)
			return
		}
		fmt.Printf("%s: %s\n", n.Item.Role, n.Item.Text)
	case transcript.ItemUpdated:
		if n.Item.Hidden || n.Item.Kind != transcript.KindMessage {
			return
		}
		if n.Item.Status == transcript.StatusDone {
			fmt.Printf("%s: %s [done]\n", n.Item.Role, n.Item.Text)
		}
	case transcript.Cleared:
		fmt.Println("  -- transcript cleared --")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
