// Package agent holds the static configuration of the AI agents a session
// can host: instructions, voice, callable tools, and the downstream agents
// a conversation may be transferred to.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/voicewire/voicewire/pkg/core/transcript"
)

// Tool describes one callable function advertised to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Handler executes a tool call. The transcript snapshot is read-only
// context as of invocation time; handlers must tolerate resolving after
// the active agent has changed.
type Handler func(ctx context.Context, args json.RawMessage, items []transcript.Item) (any, error)

// Ref names a downstream agent a conversation can be transferred to.
type Ref struct {
	Name        string
	Description string
}

// Config is one agent's static configuration. Exactly one Config is
// active per session at a time; transfer switches the active pointer
// without invalidating the transport or the transcript.
type Config struct {
	Name             string
	Instructions     string
	Voice            string
	Tools            []Tool
	DownstreamAgents []Ref

	handlersMu sync.RWMutex
	handlers   map[string]Handler
}

// RegisterHandler binds a tool name to its implementation.
func (c *Config) RegisterHandler(name string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string]Handler)
	}
	c.handlers[name] = h
}

// HandlerFor resolves a registered tool implementation by name.
func (c *Config) HandlerFor(name string) (Handler, bool) {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

// Registry is the in-memory agent-config set for one deployment.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Config
	order  []string
}

// NewRegistry builds a registry from agent configs. Names must be unique
// and non-empty.
func NewRegistry(configs ...*Config) (*Registry, error) {
	r := &Registry{agents: make(map[string]*Config, len(configs))}
	for _, cfg := range configs {
		if cfg == nil || strings.TrimSpace(cfg.Name) == "" {
			return nil, fmt.Errorf("agent config requires a name")
		}
		if _, exists := r.agents[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate agent name %q", cfg.Name)
		}
		r.agents[cfg.Name] = cfg
		r.order = append(r.order, cfg.Name)
	}
	return r, nil
}

// Get resolves an agent config by name.
func (r *Registry) Get(name string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.agents[name]
	return cfg, ok
}

// Names lists the registered agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// First returns the first registered agent, the default starting agent.
func (r *Registry) First() (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil, false
	}
	return r.agents[r.order[0]], true
}

// TransferToolName is the built-in tool every multi-agent session exposes.
const TransferToolName = "transferAgents"

// TransferTool builds the built-in transfer tool definition for an agent,
// enumerating its downstream agents. Returns false when the agent has no
// downstream agents.
func TransferTool(cfg *Config) (Tool, bool) {
	if cfg == nil || len(cfg.DownstreamAgents) == 0 {
		return Tool{}, false
	}
	names := make([]string, 0, len(cfg.DownstreamAgents))
	var descriptions strings.Builder
	for _, ref := range cfg.DownstreamAgents {
		names = append(names, ref.Name)
		fmt.Fprintf(&descriptions, "- %s: %s\n", ref.Name, ref.Description)
	}
	sort.Strings(names)

	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"rationale_for_transfer": map[string]any{
				"type":        "string",
				"description": "The reasoning why this transfer is needed.",
			},
			"conversation_context": map[string]any{
				"type":        "string",
				"description": "Relevant context from the conversation that will help the recipient perform the correct action.",
			},
			"destination_agent": map[string]any{
				"type":        "string",
				"description": "The destination agent to transfer to.",
				"enum":        names,
			},
		},
		"required": []string{"rationale_for_transfer", "conversation_context", "destination_agent"},
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return Tool{}, false
	}
	return Tool{
		Name: TransferToolName,
		Description: "Triggers a transfer of the user to a more specialized agent. " +
			"Only call this if one of the available agents is appropriate. " +
			"Available agents:\n" + descriptions.String(),
		Parameters: raw,
	}, true
}
