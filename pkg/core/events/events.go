// Package events defines the JSON event protocol spoken over the realtime
// data channel: typed outbound client events with constructors, and typed
// inbound server events with an envelope decoder.
package events

import "encoding/json"

// Client event type identifiers.
const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioBufferAppend = "input_audio_buffer.append"
	TypeInputAudioBufferClear  = "input_audio_buffer.clear"
	TypeInputAudioBufferCommit = "input_audio_buffer.commit"
	TypeConversationItemCreate = "conversation.item.create"
	TypeConversationItemTrunc  = "conversation.item.truncate"
	TypeResponseCreate         = "response.create"
	TypeResponseCancel         = "response.cancel"
)

// AudioTranscription configures server-side input speech transcription.
type AudioTranscription struct {
	Model    string `json:"model,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Language string `json:"language,omitempty"`
}

// TurnDetection configures server-side voice-activity turn segmentation.
// A nil *TurnDetection in SessionConfig serializes as JSON null, which
// selects fully manual (push-to-talk) commits.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
}

// ToolDef describes one callable function advertised to the model.
type ToolDef struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// SessionConfig is the session.update payload.
type SessionConfig struct {
	Modalities              []string            `json:"modalities,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	Voice                   string              `json:"voice,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string              `json:"output_audio_format,omitempty"`
	InputAudioTranscription *AudioTranscription `json:"input_audio_transcription,omitempty"`
	// TurnDetection has no omitempty: null is meaningful (manual commit).
	TurnDetection *TurnDetection `json:"turn_detection"`
	Tools         []ToolDef      `json:"tools,omitempty"`
}

// SessionUpdate configures the live session.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// NewSessionUpdate wraps a SessionConfig in a session.update event.
func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{Type: TypeSessionUpdate, Session: cfg}
}

// ContentPart is one element of an item's content array.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Audio      string `json:"audio,omitempty"`
}

// Item is the conversation item shape shared by client and server events.
type Item struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type,omitempty"`
	Status    string        `json:"status,omitempty"`
	Role      string        `json:"role,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// JoinedText concatenates the textual content of an item: message text
// plus any audio transcript parts.
func (it Item) JoinedText() string {
	var out string
	for _, part := range it.Content {
		if part.Text != "" {
			out += part.Text
		}
		if part.Transcript != "" {
			out += part.Transcript
		}
	}
	return out
}

// ItemCreate injects a conversation item.
type ItemCreate struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

// NewUserMessage creates a conversation.item.create for typed user input.
func NewUserMessage(id, text string) ItemCreate {
	return ItemCreate{
		Type: TypeConversationItemCreate,
		Item: Item{
			ID:      id,
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// NewSystemMessage creates a conversation.item.create carrying system text.
func NewSystemMessage(id, text string) ItemCreate {
	return ItemCreate{
		Type: TypeConversationItemCreate,
		Item: Item{
			ID:      id,
			Type:    "message",
			Role:    "system",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// NewFunctionCallOutput answers a remote function call.
func NewFunctionCallOutput(callID, output string) ItemCreate {
	return ItemCreate{
		Type: TypeConversationItemCreate,
		Item: Item{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

// ItemTruncate cuts an in-flight assistant utterance at an audio offset.
type ItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int    `json:"audio_end_ms"`
}

// NewItemTruncate creates a conversation.item.truncate event.
func NewItemTruncate(itemID string, audioEndMS int) ItemTruncate {
	return ItemTruncate{
		Type:       TypeConversationItemTrunc,
		ItemID:     itemID,
		AudioEndMS: audioEndMS,
	}
}

// Bare is a client event with no payload beyond its type.
type Bare struct {
	Type string `json:"type"`
}

// NewResponseCreate asks the model to produce a response.
func NewResponseCreate() Bare { return Bare{Type: TypeResponseCreate} }

// NewResponseCancel cancels the in-flight response.
func NewResponseCancel() Bare { return Bare{Type: TypeResponseCancel} }

// NewInputAudioBufferClear discards buffered input audio.
func NewInputAudioBufferClear() Bare { return Bare{Type: TypeInputAudioBufferClear} }

// NewInputAudioBufferCommit commits buffered input audio as a user turn.
func NewInputAudioBufferCommit() Bare { return Bare{Type: TypeInputAudioBufferCommit} }

// InputAudioBufferAppend streams base64 audio into the input buffer.
type InputAudioBufferAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// NewInputAudioBufferAppend creates an input_audio_buffer.append event.
func NewInputAudioBufferAppend(audioB64 string) InputAudioBufferAppend {
	return InputAudioBufferAppend{Type: TypeInputAudioBufferAppend, Audio: audioB64}
}
