// Package session orchestrates one realtime conversation: it connects a
// transport, configures the remote session for the active agent, feeds
// local input in, and dispatches inbound server events onto the
// transcript store.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicewire/voicewire/pkg/core"
	"github.com/voicewire/voicewire/pkg/core/agent"
	"github.com/voicewire/voicewire/pkg/core/events"
	"github.com/voicewire/voicewire/pkg/core/transcript"
	"github.com/voicewire/voicewire/pkg/metrics"
	"github.com/voicewire/voicewire/pkg/transport"
)

// Status is the session connection state.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
)

// Config holds session tuning. Zero values get sensible defaults in New.
type Config struct {
	Model string

	Modalities        []string
	InputAudioFormat  string
	OutputAudioFormat string

	TranscriptionModel    string
	TranscriptionPrompt   string
	TranscriptionLanguage string

	VADThreshold         float64
	VADPrefixPaddingMS   int
	VADSilenceDurationMS int

	// BeginPrompt is a hidden user message sent on the very first
	// connect to make the agent open the conversation.
	BeginPrompt string

	// ResumeNotice is a transcript annotation added when a session
	// reconnects with history. Empty picks a default notice.
	ResumeNotice string

	// DisableTracing suppresses function-call breadcrumbs.
	DisableTracing bool
}

// Dependencies wires a Controller. Negotiator, Credentials, Agents and
// Store are required.
type Dependencies struct {
	Negotiator  transport.Negotiator
	Credentials transport.CredentialSource
	Agents      *agent.Registry
	Store       *transcript.Store

	// StartAgent selects the initially active agent by name. Empty
	// means the registry's first agent.
	StartAgent string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Config  Config

	// Now overrides the clock, used by interruption offsets.
	Now func() time.Time

	// OnAudioDelta receives decoded assistant audio for local
	// playback. Nil means audio deltas are discarded.
	OnAudioDelta func(pcm []byte)
}

// Controller drives one conversation session across connects and
// disconnects. All exported methods are safe for concurrent use.
type Controller struct {
	negotiator  transport.Negotiator
	credentials transport.CredentialSource
	agents      *agent.Registry
	store       *transcript.Store
	logger      *slog.Logger
	metrics     *metrics.Metrics
	config      Config
	now         func() time.Time
	onAudio     func([]byte)

	mu          sync.Mutex
	status      Status
	conn        transport.Connection
	activeAgent *agent.Config
	sessionID   string
	startCount  int
	pushToTalk  bool
	micEnabled  bool
}

// New creates a disconnected Controller.
func New(deps Dependencies) (*Controller, error) {
	if deps.Negotiator == nil {
		return nil, fmt.Errorf("session: negotiator is required")
	}
	if deps.Credentials == nil {
		return nil, fmt.Errorf("session: credential source is required")
	}
	if deps.Agents == nil {
		return nil, fmt.Errorf("session: agent registry is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("session: transcript store is required")
	}

	start, ok := deps.Agents.First()
	if deps.StartAgent != "" {
		start, ok = deps.Agents.Get(deps.StartAgent)
	}
	if !ok {
		return nil, fmt.Errorf("session: start agent %q not found", deps.StartAgent)
	}

	cfg := deps.Config
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = []string{"text", "audio"}
	}
	if cfg.InputAudioFormat == "" {
		cfg.InputAudioFormat = "pcm16"
	}
	if cfg.OutputAudioFormat == "" {
		cfg.OutputAudioFormat = "pcm16"
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "gpt-4o-mini-transcribe"
	}
	if cfg.VADThreshold == 0 {
		cfg.VADThreshold = 0.9
	}
	if cfg.VADPrefixPaddingMS == 0 {
		cfg.VADPrefixPaddingMS = 300
	}
	if cfg.VADSilenceDurationMS == 0 {
		cfg.VADSilenceDurationMS = 500
	}
	if cfg.ResumeNotice == "" {
		cfg.ResumeNotice = "Call resumed."
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		negotiator:  deps.Negotiator,
		credentials: deps.Credentials,
		agents:      deps.Agents,
		store:       deps.Store,
		logger:      logger,
		metrics:     deps.Metrics,
		config:      cfg,
		now:         now,
		onAudio:     deps.OnAudioDelta,
		status:      StatusDisconnected,
		activeAgent: start,
		micEnabled:  true,
	}, nil
}

// Status returns the current connection state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ActiveAgent returns the currently active agent config.
func (c *Controller) ActiveAgent() *agent.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeAgent
}

// SessionID returns the remote session ID, empty until session.created.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connect negotiates a transport and brings the session live. Calling
// Connect while not Disconnected is an error. A failure at any stage
// collapses back to Disconnected.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusDisconnected {
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("session: connect while %s", status)
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	credential, err := c.credentials.Fetch(ctx)
	if err != nil {
		c.collapse()
		c.metrics.RecordSessionFailure(string(core.ErrCredential))
		return fmt.Errorf("fetch credential: %w", err)
	}

	conn, err := c.negotiator.Open(ctx, credential)
	if err != nil {
		c.collapse()
		c.metrics.RecordSessionFailure(string(core.ErrSignaling))
		return fmt.Errorf("open transport: %w", err)
	}

	c.mu.Lock()
	if c.status != StatusConnecting {
		// Disconnect raced the handshake; the new connection loses.
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("session: disconnected during connect")
	}
	c.conn = conn
	c.status = StatusConnected
	first := c.startCount == 0
	c.startCount++
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	c.logger.Info("session connected", "agent", c.ActiveAgent().Name, "first", first)

	c.updateSession()
	c.bootstrapConversation(first)

	go c.readLoop(conn)
	return nil
}

// Disconnect tears the session down. It is total: safe to call in any
// state, repeatedly, and never returns an error.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	wasConnected := c.status == StatusConnected
	c.conn = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		c.metrics.RecordSessionEnd()
	}
	c.logger.Info("session disconnected")
}

func (c *Controller) collapse() {
	c.mu.Lock()
	c.status = StatusDisconnected
	c.conn = nil
	c.mu.Unlock()
}

// readLoop pumps inbound frames through the dispatcher. Events are
// handled one at a time, in arrival order.
func (c *Controller) readLoop(conn transport.Connection) {
	for data := range conn.Messages() {
		ev, err := events.Decode(data)
		if err != nil {
			c.logger.Warn("dropping undecodable server event", "error", err)
			continue
		}
		c.metrics.RecordServerEvent(serverEventType(ev))
		c.handleServerEvent(ev)
	}

	// Tear down only if this conn is still current; a newer Connect
	// owns the session otherwise.
	c.mu.Lock()
	current := c.conn == conn
	c.mu.Unlock()
	if current {
		c.Disconnect()
	}
}

// SendEvent marshals and transmits one client event. Events sent while
// no channel is open are dropped with a warning; the session treats
// that as non-fatal.
func (c *Controller) SendEvent(ev any) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal client event: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	eventType := clientEventType(data)
	if conn == nil {
		c.logger.Warn("dropping client event, not connected", "type", eventType)
		c.metrics.RecordDroppedEvent()
		return nil
	}
	if err := conn.Send(data); err != nil {
		if core.KindOf(err) == core.ErrChannelNotOpen {
			c.logger.Warn("dropping client event, channel not open", "type", eventType)
			c.metrics.RecordDroppedEvent()
			return nil
		}
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	c.metrics.RecordClientEvent(eventType)
	return nil
}

// SendUserText injects typed user input: any in-flight assistant speech
// is cancelled first, then the message is recorded locally and sent,
// followed by a response request.
func (c *Controller) SendUserText(text string) error {
	c.CancelAssistantSpeech()

	id := "usr-" + uuid.NewString()
	c.store.AddMessage(id, transcript.RoleUser, text, false)
	if err := c.SendEvent(events.NewUserMessage(id, text)); err != nil {
		return err
	}
	return c.SendEvent(events.NewResponseCreate())
}

// BeginTurn starts a push-to-talk turn: interrupt the assistant and
// drop any stale buffered audio.
func (c *Controller) BeginTurn() error {
	c.CancelAssistantSpeech()
	return c.SendEvent(events.NewInputAudioBufferClear())
}

// CommitTurn ends a push-to-talk turn and requests a response.
func (c *Controller) CommitTurn() error {
	if err := c.SendEvent(events.NewInputAudioBufferCommit()); err != nil {
		return err
	}
	return c.SendEvent(events.NewResponseCreate())
}

// AppendAudio streams one base64 pcm16 chunk into the input buffer.
func (c *Controller) AppendAudio(audioB64 string) error {
	return c.SendEvent(events.NewInputAudioBufferAppend(audioB64))
}

// SetPushToTalk switches between manual commits and server VAD. When
// connected, the remote session is reconfigured immediately.
func (c *Controller) SetPushToTalk(on bool) {
	c.mu.Lock()
	c.pushToTalk = on
	connected := c.status == StatusConnected
	c.mu.Unlock()
	if connected {
		c.updateSession()
	}
}

// SetMicEnabled toggles audio input. A disabled mic also disables
// server VAD so silence is never auto-committed.
func (c *Controller) SetMicEnabled(on bool) {
	c.mu.Lock()
	c.micEnabled = on
	connected := c.status == StatusConnected
	c.mu.Unlock()
	if connected {
		c.updateSession()
	}
}

// updateSession pushes a session.update reflecting the active agent and
// current input mode.
func (c *Controller) updateSession() {
	if err := c.SendEvent(events.NewSessionUpdate(c.sessionConfig())); err != nil {
		c.logger.Warn("session.update failed", "error", err)
	}
}

func (c *Controller) sessionConfig() events.SessionConfig {
	c.mu.Lock()
	active := c.activeAgent
	manual := c.pushToTalk || !c.micEnabled
	c.mu.Unlock()

	cfg := events.SessionConfig{
		Modalities:        c.config.Modalities,
		Instructions:      active.Instructions,
		Voice:             active.Voice,
		InputAudioFormat:  c.config.InputAudioFormat,
		OutputAudioFormat: c.config.OutputAudioFormat,
		InputAudioTranscription: &events.AudioTranscription{
			Model:    c.config.TranscriptionModel,
			Prompt:   c.config.TranscriptionPrompt,
			Language: c.config.TranscriptionLanguage,
		},
	}

	// Manual mode serializes turn_detection as null.
	if !manual {
		cfg.TurnDetection = &events.TurnDetection{
			Type:              "server_vad",
			Threshold:         c.config.VADThreshold,
			PrefixPaddingMS:   c.config.VADPrefixPaddingMS,
			SilenceDurationMS: c.config.VADSilenceDurationMS,
			CreateResponse:    true,
		}
	}

	for _, tool := range active.Tools {
		cfg.Tools = append(cfg.Tools, events.ToolDef{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	if transfer, ok := agent.TransferTool(active); ok {
		cfg.Tools = append(cfg.Tools, events.ToolDef{
			Type:        "function",
			Name:        transfer.Name,
			Description: transfer.Description,
			Parameters:  transfer.Parameters,
		})
	}

	return cfg
}

// bootstrapConversation seeds the fresh remote session. A reconnect
// replays the accumulated transcript as hidden context so the model
// picks up where it left off.
func (c *Controller) bootstrapConversation(first bool) {
	if prior := c.store.Serialize(); prior != "" {
		id := "ctx-" + uuid.NewString()
		text := "Context from the conversation so far:\n" + prior
		// Recorded hidden first so the server echo dedups instead of
		// rendering the whole history as a visible message.
		c.store.AddMessage(id, transcript.RoleSystem, text, true)
		if err := c.SendEvent(events.NewSystemMessage(id, text)); err != nil {
			c.logger.Warn("conversation context send failed", "error", err)
		}
	}

	if first {
		if c.config.BeginPrompt == "" {
			return
		}
		id := "usr-" + uuid.NewString()
		c.store.AddMessage(id, transcript.RoleUser, c.config.BeginPrompt, true)
		c.SendEvent(events.NewUserMessage(id, c.config.BeginPrompt))
		c.SendEvent(events.NewResponseCreate())
		return
	}

	if c.config.ResumeNotice != "" {
		c.store.AddBreadcrumb(c.config.ResumeNotice, nil)
	}
}

// serverEventType labels a decoded server event for metrics.
func serverEventType(ev any) string {
	switch e := ev.(type) {
	case *events.SessionCreated:
		return e.Type
	case *events.ConversationItemCreated:
		return e.Type
	case *events.ResponseCreated:
		return e.Type
	case *events.InputAudioTranscriptionDelta:
		return e.Type
	case *events.InputAudioTranscriptionCompleted:
		return e.Type
	case *events.ResponseAudioTranscriptDelta:
		return e.Type
	case *events.ResponseTextDelta:
		return e.Type
	case *events.ResponseAudioDelta:
		return e.Type
	case *events.ResponseDone:
		return e.Type
	case *events.ResponseOutputItemDone:
		return e.Type
	case *events.Unknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// clientEventType peeks the type field of a marshaled client event.
func clientEventType(data []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
		return "unknown"
	}
	return envelope.Type
}
