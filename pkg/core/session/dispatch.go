package session

import (
	"encoding/base64"
	"fmt"

	"github.com/voicewire/voicewire/pkg/core/events"
	"github.com/voicewire/voicewire/pkg/core/transcript"
)

// handleServerEvent routes one decoded server event. Runs on the read
// loop goroutine; only tool handlers fan out.
func (c *Controller) handleServerEvent(ev any) {
	switch e := ev.(type) {
	case *events.SessionCreated:
		c.mu.Lock()
		c.sessionID = e.Session.ID
		c.mu.Unlock()
		c.store.AddBreadcrumb(fmt.Sprintf("session.id: %s", e.Session.ID), nil)

	case *events.ConversationItemCreated:
		c.handleItemCreated(e.Item)

	case *events.ResponseCreated:
		// A new response must not overlap a previous unfinished one.
		c.CancelAssistantSpeech()

	case *events.InputAudioTranscriptionDelta:
		// Partial input transcripts are intentionally not surfaced;
		// the completed event replaces the placeholder wholesale.

	case *events.InputAudioTranscriptionCompleted:
		text := e.Transcript
		if text == "" {
			text = "[inaudible]"
		}
		c.store.UpdateMessage(e.ItemID, text, false)
		c.store.SetStatus(e.ItemID, transcript.StatusDone)

	case *events.ResponseAudioTranscriptDelta:
		c.store.UpdateMessage(e.ItemID, e.Delta, true)

	case *events.ResponseTextDelta:
		c.store.UpdateMessage(e.ItemID, e.Delta, true)

	case *events.ResponseAudioDelta:
		if c.onAudio == nil {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(e.Delta)
		if err != nil {
			c.logger.Warn("bad audio delta", "item_id", e.ItemID, "error", err)
			return
		}
		c.onAudio(pcm)

	case *events.ResponseDone:
		for _, item := range e.Response.Output {
			if item.Type == "function_call" {
				c.dispatchFunctionCall(item)
			}
		}
		c.logger.Debug("response done", "response_id", e.Response.ID, "status", e.Response.Status)

	case *events.ResponseOutputItemDone:
		c.store.SetStatus(e.Item.ID, transcript.StatusDone)

	case *events.Unknown:
		c.logger.Debug("ignoring server event", "type", e.Type)
	}
}

// handleItemCreated records a freshly announced conversation item.
// Items the session created locally arrive back with the same ID and
// are deduplicated.
func (c *Controller) handleItemCreated(item events.Item) {
	if item.Type != "message" {
		return
	}
	if _, exists := c.store.Get(item.ID); exists {
		return
	}

	role := transcript.Role(item.Role)
	text := item.JoinedText()

	// Spoken user input has no text until transcription completes.
	if role == transcript.RoleUser && text == "" {
		text = transcript.TranscribingPlaceholder
	}

	c.store.AddMessage(item.ID, role, text, false)

	// An empty assistant item is an agent-initiated turn with no
	// pre-supplied text; ask for a response to fill it.
	if role == transcript.RoleAssistant && text == "" {
		if err := c.SendEvent(events.NewResponseCreate()); err != nil {
			c.logger.Warn("response create for empty assistant item failed", "error", err)
		}
	}
}
