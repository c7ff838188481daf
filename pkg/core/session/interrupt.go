package session

import (
	"github.com/voicewire/voicewire/pkg/core/events"
	"github.com/voicewire/voicewire/pkg/core/transcript"
)

// CancelAssistantSpeech interrupts the in-flight assistant utterance,
// if any. It truncates the item's audio at the elapsed playback offset
// and cancels the pending response. A missing or already finished
// assistant message makes this a no-op, so callers invoke it
// unconditionally before injecting new user input.
func (c *Controller) CancelAssistantSpeech() {
	last, ok := c.store.LastAssistantMessage()
	if !ok || last.Status == transcript.StatusDone {
		return
	}

	elapsed := int(c.now().Sub(last.CreatedAt).Milliseconds())
	if elapsed < 0 {
		elapsed = 0
	}

	c.logger.Debug("interrupting assistant", "item_id", last.ID, "audio_end_ms", elapsed)
	if err := c.SendEvent(events.NewItemTruncate(last.ID, elapsed)); err != nil {
		c.logger.Warn("truncate failed", "error", err)
	}
	if err := c.SendEvent(events.NewResponseCancel()); err != nil {
		c.logger.Warn("response cancel failed", "error", err)
	}

	// Finalize locally; the interrupted utterance never resumes.
	c.store.SetStatus(last.ID, transcript.StatusDone)
}
