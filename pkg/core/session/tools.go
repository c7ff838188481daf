package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voicewire/voicewire/pkg/core"
	"github.com/voicewire/voicewire/pkg/core/agent"
	"github.com/voicewire/voicewire/pkg/core/events"
)

// dispatchFunctionCall routes one function_call output item. Registered
// handlers run on their own goroutine so a slow tool never stalls the
// read loop; transfer and fallback paths are cheap and run inline.
func (c *Controller) dispatchFunctionCall(call events.Item) {
	if !c.config.DisableTracing {
		c.store.AddBreadcrumb(fmt.Sprintf("function call: %s(%s)", call.Name, call.Arguments), nil)
	}

	active := c.ActiveAgent()
	if handler, ok := active.HandlerFor(call.Name); ok {
		go c.runToolHandler(call, handler)
		return
	}

	if call.Name == agent.TransferToolName {
		c.handleTransfer(call)
		return
	}

	// Unregistered tool: acknowledge so the model can move on.
	c.logger.Warn("no handler for tool", "tool", call.Name, "agent", active.Name)
	result := map[string]any{"result": true}
	if !c.config.DisableTracing {
		c.store.AddBreadcrumb(fmt.Sprintf("function call fallback: %s", call.Name),
			map[string]any{"result": result})
	}
	c.sendToolOutput(call.CallID, result, true)
}

// runToolHandler executes a registered tool handler with a transcript
// snapshot, converting panics and errors into a structured failure
// output. The model always gets exactly one function_call_output and
// one follow-up response request.
func (c *Controller) runToolHandler(call events.Item, handler agent.Handler) {
	start := c.now()

	var result any
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		result, err = handler(context.Background(), json.RawMessage(call.Arguments), c.store.Items())
		return err
	}()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		toolErr := core.NewToolError(call.Name, err)
		c.logger.Error("tool handler failed", "tool", call.Name, "error", toolErr)
		result = map[string]any{"success": false, "error": err.Error()}
	}
	c.metrics.RecordToolCall(call.Name, outcome, c.now().Sub(start))

	if !c.config.DisableTracing {
		c.store.AddBreadcrumb(fmt.Sprintf("function call result: %s", call.Name),
			map[string]any{"result": result})
	}

	c.sendToolOutput(call.CallID, result, true)
}

// handleTransfer switches the active agent per the model's request. The
// output reports whether the transfer happened; no response is
// requested here since the destination agent's session.update prompts
// the model itself.
func (c *Controller) handleTransfer(call events.Item) {
	var args struct {
		DestinationAgent    string `json:"destination_agent"`
		RationaleTransfer   string `json:"rationale_for_transfer"`
		ConversationContext string `json:"conversation_context"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		c.logger.Warn("bad transfer arguments", "error", err)
	}

	outcome := "error"
	dest, ok := c.agents.Get(args.DestinationAgent)
	if ok {
		outcome = "ok"
		c.mu.Lock()
		c.activeAgent = dest
		c.mu.Unlock()
		c.updateSession()
		if !c.config.DisableTracing {
			c.store.AddBreadcrumb(fmt.Sprintf("Agent: %s", dest.Name), map[string]any{
				"rationale": args.RationaleTransfer,
				"context":   args.ConversationContext,
			})
		}
		c.logger.Info("transferred agent", "to", dest.Name)
	} else {
		c.logger.Warn("transfer to unknown agent", "destination", args.DestinationAgent)
		if !c.config.DisableTracing {
			c.store.AddBreadcrumb(fmt.Sprintf("transfer refused: no agent %q", args.DestinationAgent), nil)
		}
	}

	c.metrics.RecordToolCall(agent.TransferToolName, outcome, 0)
	c.sendToolOutput(call.CallID, map[string]any{
		"destination_agent": args.DestinationAgent,
		"did_transfer":      ok,
	}, false)
}

// sendToolOutput emits the function_call_output, optionally followed by
// a response request.
func (c *Controller) sendToolOutput(callID string, result any, requestResponse bool) {
	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("marshal tool output", "error", err)
		payload = []byte(`{"success":false,"error":"unserializable tool result"}`)
	}
	if err := c.SendEvent(events.NewFunctionCallOutput(callID, string(payload))); err != nil {
		c.logger.Warn("tool output send failed", "error", err)
		return
	}
	if requestResponse {
		if err := c.SendEvent(events.NewResponseCreate()); err != nil {
			c.logger.Warn("tool follow-up response failed", "error", err)
		}
	}
}
