package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Server event type identifiers.
const (
	TypeSessionCreated                   = "session.created"
	TypeSessionUpdated                   = "session.updated"
	TypeConversationItemCreated          = "conversation.item.created"
	TypeResponseCreated                  = "response.created"
	TypeInputAudioTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeResponseAudioTranscriptDelta     = "response.audio_transcript.delta"
	TypeResponseTextDelta                = "response.text.delta"
	TypeResponseAudioDelta               = "response.audio.delta"
	TypeResponseDone                     = "response.done"
	TypeResponseOutputItemDone           = "response.output_item.done"
)

// ServerSession is the session object carried by session lifecycle events.
type ServerSession struct {
	ID string `json:"id"`
}

// SessionCreated confirms the session is live on the remote side.
type SessionCreated struct {
	Type    string        `json:"type"`
	Session ServerSession `json:"session"`
}

// ConversationItemCreated announces a new conversation item.
type ConversationItemCreated struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

// Response is the response object carried by response lifecycle events.
type Response struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Output []Item `json:"output,omitempty"`
}

// ResponseCreated announces that the model started a response.
type ResponseCreated struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

// InputAudioTranscriptionDelta carries a partial input transcript. These
// are deliberately not surfaced to the transcript store.
type InputAudioTranscriptionDelta struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// InputAudioTranscriptionCompleted carries the final input transcript.
type InputAudioTranscriptionCompleted struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// ResponseAudioTranscriptDelta streams assistant speech transcript text.
type ResponseAudioTranscriptDelta struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// ResponseTextDelta streams assistant text-modality output.
type ResponseTextDelta struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// ResponseAudioDelta streams base64 assistant audio for local playback.
type ResponseAudioDelta struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// ResponseDone closes a response and lists its output items.
type ResponseDone struct {
	Type     string   `json:"type"`
	Response Response `json:"response"`
}

// ResponseOutputItemDone marks one output item as final.
type ResponseOutputItemDone struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

// Unknown wraps an unrecognized server event. Unknown types are not an
// error; new protocol additions must not break older clients.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

// Decode parses one inbound data-channel frame into its typed server
// event. Unrecognized types decode to Unknown.
func Decode(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid server event frame: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("server event is missing type")
	}

	decode := func(v any) (any, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("invalid %s event: %w", typ, err)
		}
		return v, nil
	}

	switch typ {
	case TypeSessionCreated:
		v := &SessionCreated{}
		return decode(v)
	case TypeConversationItemCreated:
		v := &ConversationItemCreated{}
		return decode(v)
	case TypeResponseCreated:
		v := &ResponseCreated{}
		return decode(v)
	case TypeInputAudioTranscriptionDelta:
		v := &InputAudioTranscriptionDelta{}
		return decode(v)
	case TypeInputAudioTranscriptionCompleted:
		v := &InputAudioTranscriptionCompleted{}
		return decode(v)
	case TypeResponseAudioTranscriptDelta:
		v := &ResponseAudioTranscriptDelta{}
		return decode(v)
	case TypeResponseTextDelta:
		v := &ResponseTextDelta{}
		return decode(v)
	case TypeResponseAudioDelta:
		v := &ResponseAudioDelta{}
		return decode(v)
	case TypeResponseDone:
		v := &ResponseDone{}
		return decode(v)
	case TypeResponseOutputItemDone:
		v := &ResponseOutputItemDone{}
		return decode(v)
	default:
		return &Unknown{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
