package transcript

import "time"

// Kind distinguishes spoken-exchange messages from system annotations.
type Kind string

const (
	KindMessage    Kind = "MESSAGE"
	KindBreadcrumb Kind = "BREADCRUMB"
)

// Role identifies the author of a message item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Status tracks streaming progress of an item. It only ever moves
// InProgress -> Done.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// TranscribingPlaceholder seeds user items whose speech has not been
// transcribed yet. Appended deltas strip it from the front of the text.
const TranscribingPlaceholder = "[Transcribing...]"

// Item is one conversation-visible unit: a message or a breadcrumb.
type Item struct {
	ID        string
	Kind      Kind
	Role      Role
	Text      string
	Status    Status
	Hidden    bool
	CreatedAt time.Time
	Expanded  bool

	// Data carries the structured payload of a breadcrumb, if any.
	Data map[string]any
}

// IsMessage reports whether the item is part of the spoken exchange.
func (it Item) IsMessage() bool { return it.Kind == KindMessage }
