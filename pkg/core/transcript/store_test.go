package transcript

import (
	"sync"
	"testing"
	"time"
)

func collect(t *testing.T, s *Store) (<-chan Notification, func()) {
	t.Helper()
	ch := make(chan Notification, 64)
	unsub := s.Subscribe(func(n Notification) { ch <- n })
	return ch, unsub
}

func waitNotification(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func TestAddMessage_IdempotentInsert(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddMessage("a1", RoleUser, "hello", false)
	s.AddMessage("a1", RoleUser, "hello again", false)

	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	it, ok := s.Get("a1")
	if !ok {
		t.Fatal("item a1 not found")
	}
	if it.Text != "hello" {
		t.Fatalf("Text = %q, want the first insert to win", it.Text)
	}
	if it.Status != StatusInProgress {
		t.Fatalf("Status = %q, want %q", it.Status, StatusInProgress)
	}
}

func TestUpdateMessage_AppendConcatenates(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddMessage("a1", RoleUser, "", false)
	s.UpdateMessage("a1", "hello", true)
	s.UpdateMessage("a1", " world", true)

	it, _ := s.Get("a1")
	if it.Text != "hello world" {
		t.Fatalf("Text = %q, want %q", it.Text, "hello world")
	}
	if it.Status != StatusInProgress {
		t.Fatalf("Status = %q, want InProgress until SetStatus", it.Status)
	}

	s.SetStatus("a1", StatusDone)
	it, _ = s.Get("a1")
	if it.Status != StatusDone {
		t.Fatalf("Status = %q, want Done", it.Status)
	}
}

func TestUpdateMessage_StripsTranscribingPlaceholder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddMessage("u1", RoleUser, TranscribingPlaceholder, false)
	s.UpdateMessage("u1", "good", true)
	s.UpdateMessage("u1", " morning", true)

	it, _ := s.Get("u1")
	if it.Text != "good morning" {
		t.Fatalf("Text = %q, want placeholder stripped", it.Text)
	}
}

func TestUpdateMessage_ReplaceAndMissingID(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddMessage("u1", RoleUser, "draft", false)
	s.UpdateMessage("u1", "final", false)
	it, _ := s.Get("u1")
	if it.Text != "final" {
		t.Fatalf("Text = %q, want %q", it.Text, "final")
	}

	// Missing ID is a no-op, not a panic.
	s.UpdateMessage("nope", "x", true)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestSetStatus_NoRegression(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddMessage("a1", RoleAssistant, "done already", false)
	s.SetStatus("a1", StatusDone)
	s.SetStatus("a1", StatusInProgress)

	it, _ := s.Get("a1")
	if it.Status != StatusDone {
		t.Fatalf("Status = %q, want Done to stick", it.Status)
	}
}

func TestAddBreadcrumb_DoneImmediately(t *testing.T) {
	t.Parallel()

	s := NewStore()
	id := s.AddBreadcrumb("Agent: haiku", map[string]any{"from": "greeter"})

	it, ok := s.Get(id)
	if !ok {
		t.Fatal("breadcrumb not found")
	}
	if it.Kind != KindBreadcrumb {
		t.Fatalf("Kind = %q, want breadcrumb", it.Kind)
	}
	if it.Status != StatusDone {
		t.Fatalf("Status = %q, want Done", it.Status)
	}
	if it.Data["from"] != "greeter" {
		t.Fatalf("Data = %v", it.Data)
	}
}

func TestNotifications_OnePerMutatingCall(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ch, unsub := collect(t, s)
	defer unsub()

	s.AddMessage("a1", RoleUser, "", false)
	s.UpdateMessage("a1", "hello", true)
	s.SetStatus("a1", StatusDone)
	s.Clear()

	wantKinds := []ChangeKind{ItemAdded, ItemUpdated, ItemUpdated, Cleared}
	for i, want := range wantKinds {
		n := waitNotification(t, ch)
		if n.Kind != want {
			t.Fatalf("notification %d kind = %q, want %q", i, n.Kind, want)
		}
	}

	// No extra notifications beyond one per call.
	select {
	case n := <-ch:
		t.Fatalf("unexpected extra notification: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifications_CarrySnapshot(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ch, unsub := collect(t, s)
	defer unsub()

	s.AddMessage("a1", RoleUser, "hi", false)
	n := waitNotification(t, ch)
	if n.Item == nil || n.Item.ID != "a1" {
		t.Fatalf("notification item = %+v", n.Item)
	}
	if len(n.Items) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(n.Items))
	}

	// Mutating the snapshot must not affect the store.
	n.Items[0].Text = "tampered"
	it, _ := s.Get("a1")
	if it.Text != "hi" {
		t.Fatal("store state leaked through the snapshot")
	}
}

func TestSubscriber_MayReenterStore(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var once sync.Once
	done := make(chan struct{})
	unsub := s.Subscribe(func(n Notification) {
		once.Do(func() {
			// Re-entering the store from a notification must not deadlock.
			s.AddBreadcrumb("reentrant", nil)
			close(done)
		})
	})
	defer unsub()

	s.AddMessage("a1", RoleUser, "hi", false)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber re-entry deadlocked")
	}
}

func TestClear_EmptiesStore(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddMessage("a1", RoleUser, "hi", false)
	s.AddBreadcrumb("note", nil)
	s.Clear()

	if s.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", s.Len())
	}
	// IDs are reusable after Clear.
	s.AddMessage("a1", RoleUser, "again", false)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestLastAssistantMessage(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if _, ok := s.LastAssistantMessage(); ok {
		t.Fatal("expected no assistant message in empty store")
	}

	s.AddMessage("u1", RoleUser, "hi", false)
	s.AddMessage("as1", RoleAssistant, "hello", false)
	s.AddBreadcrumb("note", nil)
	s.AddMessage("u2", RoleUser, "more", false)

	it, ok := s.LastAssistantMessage()
	if !ok || it.ID != "as1" {
		t.Fatalf("LastAssistantMessage = %+v, ok=%v", it, ok)
	}
}

func TestSerialize(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddMessage("u1", RoleUser, "hi", false)
	s.AddMessage("as1", RoleAssistant, "hello there", false)
	s.AddMessage("sys1", RoleSystem, "context", true)
	s.AddBreadcrumb("Agent: haiku", nil)
	s.AddMessage("u2", RoleUser, "", false)

	want := "user: hi\nassistant: hello there\nsystem: context"
	if got := s.Serialize(); got != want {
		t.Fatalf("Serialize() = %q, want %q", got, want)
	}
}

func TestToggleExpand(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddMessage("a1", RoleUser, "hi", false)
	s.ToggleExpand("a1")
	if it, _ := s.Get("a1"); !it.Expanded {
		t.Fatal("expected Expanded true after toggle")
	}
	s.SetExpanded("a1", false)
	if it, _ := s.Get("a1"); it.Expanded {
		t.Fatal("expected Expanded false after SetExpanded")
	}
}
