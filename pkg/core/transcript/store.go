package transcript

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeKind labels a store notification.
type ChangeKind string

const (
	ItemAdded   ChangeKind = "new_item"
	ItemUpdated ChangeKind = "update_item"
	Cleared     ChangeKind = "clean_items"
)

// Notification describes one store mutation. Item is nil for Cleared.
// Items is a snapshot of the full list after the mutation.
type Notification struct {
	Kind  ChangeKind
	Item  *Item
	Items []Item
}

// Store is the single source of truth for the visible conversation: an
// ordered list of message and breadcrumb items, each mutable in place.
//
// Every mutating call enqueues exactly one notification and schedules an
// asynchronous flush; subscribers are never called inside the mutating
// call, so a subscriber reacting to one notification cannot re-enter a
// mutation mid-update.
type Store struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	items    []*Item
	index    map[string]int
	pending  []Notification
	flushing bool

	subMu   sync.Mutex
	subs    map[int]func(Notification)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty transcript store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		index: make(map[string]int),
		subs:  make(map[int]func(Notification)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Subscribe registers fn to receive notifications in mutation order and
// returns an unsubscribe closure.
func (s *Store) Subscribe(fn func(Notification)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// AddMessage inserts a message item with status InProgress. Inserting an
// ID that already exists is a no-op (idempotent insert).
func (s *Store) AddMessage(id string, role Role, text string, hidden bool) {
	s.mu.Lock()
	if _, exists := s.index[id]; exists {
		s.mu.Unlock()
		s.logger.Warn("duplicate transcript item ignored", "item_id", id)
		return
	}
	it := &Item{
		ID:        id,
		Kind:      KindMessage,
		Role:      role,
		Text:      text,
		Status:    StatusInProgress,
		Hidden:    hidden,
		CreatedAt: s.now(),
	}
	s.index[id] = len(s.items)
	s.items = append(s.items, it)
	s.enqueueLocked(ItemAdded, it)
	s.mu.Unlock()
}

// UpdateMessage replaces or extends an item's text. When append is true the
// new text is concatenated onto the existing text, stripping the
// transcribing placeholder prefix if present. A missing ID is a no-op.
func (s *Store) UpdateMessage(id, text string, append bool) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	it := s.items[idx]
	if append {
		base := strings.TrimPrefix(it.Text, TranscribingPlaceholder)
		it.Text = base + text
	} else {
		it.Text = text
	}
	s.enqueueLocked(ItemUpdated, it)
	s.mu.Unlock()
}

// AddBreadcrumb inserts a system-visible annotation. Breadcrumbs are Done
// immediately. Returns the generated item ID.
func (s *Store) AddBreadcrumb(title string, data map[string]any) string {
	id := "bc-" + uuid.NewString()
	s.mu.Lock()
	it := &Item{
		ID:        id,
		Kind:      KindBreadcrumb,
		Role:      RoleSystem,
		Text:      title,
		Status:    StatusDone,
		CreatedAt: s.now(),
		Data:      data,
	}
	s.index[id] = len(s.items)
	s.items = append(s.items, it)
	s.enqueueLocked(ItemAdded, it)
	s.mu.Unlock()
	return id
}

// SetStatus transitions an item's status. Status is monotonic: a
// Done -> InProgress regression is logged and ignored.
func (s *Store) SetStatus(id string, status Status) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	it := s.items[idx]
	if it.Status == StatusDone && status == StatusInProgress {
		s.mu.Unlock()
		s.logger.Warn("ignoring status regression", "item_id", id)
		return
	}
	it.Status = status
	s.enqueueLocked(ItemUpdated, it)
	s.mu.Unlock()
}

// ToggleExpand flips an item's UI expansion flag. No external effect.
func (s *Store) ToggleExpand(id string) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	it := s.items[idx]
	it.Expanded = !it.Expanded
	s.enqueueLocked(ItemUpdated, it)
	s.mu.Unlock()
}

// SetExpanded sets an item's UI expansion flag explicitly.
func (s *Store) SetExpanded(id string, expanded bool) {
	s.mu.Lock()
	idx, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	it := s.items[idx]
	it.Expanded = expanded
	s.enqueueLocked(ItemUpdated, it)
	s.mu.Unlock()
}

// Clear empties the store and notifies subscribers.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.index = make(map[string]int)
	s.enqueueLocked(Cleared, nil)
	s.mu.Unlock()
}

// Get returns a copy of the item with the given ID.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.index[id]
	if !ok {
		return Item{}, false
	}
	return *s.items[idx], true
}

// Items returns a snapshot of all items in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of items in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// LastAssistantMessage returns a copy of the most recent assistant message.
func (s *Store) LastAssistantMessage() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		it := s.items[i]
		if it.Kind == KindMessage && it.Role == RoleAssistant {
			return *it, true
		}
	}
	return Item{}, false
}

// Serialize renders the message items as role-prefixed lines, used to seed
// a reconnected session with the conversation so far. Breadcrumbs are
// omitted; hidden messages are included since they are model context.
func (s *Store) Serialize() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, it := range s.items {
		if it.Kind != KindMessage || strings.TrimSpace(it.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", it.Role, it.Text)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// enqueueLocked records exactly one notification for the current mutating
// call and schedules a flush. Caller holds s.mu.
func (s *Store) enqueueLocked(kind ChangeKind, it *Item) {
	n := Notification{Kind: kind, Items: s.snapshotLocked()}
	if it != nil {
		copied := *it
		n.Item = &copied
	}
	s.pending = append(s.pending, n)
	if !s.flushing {
		s.flushing = true
		go s.flush()
	}
}

// flush drains pending notifications and delivers them outside the store
// lock, so subscribers may call back into the store.
func (s *Store) flush() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.flushing = false
			s.mu.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		s.subMu.Lock()
		fns := make([]func(Notification), 0, len(s.subs))
		for _, fn := range s.subs {
			fns = append(fns, fn)
		}
		s.subMu.Unlock()

		for _, n := range batch {
			for _, fn := range fns {
				fn(n)
			}
		}
	}
}

func (s *Store) snapshotLocked() []Item {
	out := make([]Item, len(s.items))
	for i, it := range s.items {
		out[i] = *it
	}
	return out
}
