package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voicewire/voicewire/pkg/core/transcript"
)

// HTTPToolConfig configures a tool backed by a remote tool service.
type HTTPToolConfig struct {
	// BaseURL is the tool service root, e.g. "https://tools.internal".
	BaseURL string
	// ID selects the remote tool: POST {BaseURL}/api/tools/{ID}/use.
	ID string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// NewHTTPTool returns a Handler that forwards the call's question to the
// remote tool backend and returns its JSON result verbatim.
//
// The question is taken from the "question" argument when present,
// otherwise the raw argument JSON is sent as the question.
func NewHTTPTool(cfg HTTPToolConfig) Handler {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimSuffix(cfg.BaseURL, "/") + "/api/tools/" + cfg.ID + "/use"

	return func(ctx context.Context, args json.RawMessage, _ []transcript.Item) (any, error) {
		question := string(args)
		var parsed struct {
			Question string `json:"question"`
		}
		if err := json.Unmarshal(args, &parsed); err == nil && parsed.Question != "" {
			question = parsed.Question
		}

		body, err := json.Marshal(map[string]string{"question": question})
		if err != nil {
			return nil, fmt.Errorf("encode tool request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build tool request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call tool %q: %w", cfg.ID, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read tool %q response: %w", cfg.ID, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("tool %q returned status %d", cfg.ID, resp.StatusCode)
		}
		if !json.Valid(payload) {
			return nil, fmt.Errorf("tool %q returned invalid JSON", cfg.ID)
		}
		// Forward the backend result verbatim.
		return json.RawMessage(payload), nil
	}
}
