package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goerrors "github.com/go-errors/errors"

	"daygrid/internal/model"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	db, err := OpenLocalDB(filepath.Join(t.TempDir(), "daygrid.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewLocal(db, "alice")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestLocalAddRoundTrip(t *testing.T) {
	s := newTestLocal(t)

	due := time.Date(2024, time.July, 4, 0, 0, 0, 0, time.UTC)
	created, err := s.Add(context.Background(), TaskInput{Title: "Buy milk", Priority: model.PriorityHigh, DueAt: &due})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected created-at to be set")
	}
	if created.Completed {
		t.Fatalf("expected new task to start incomplete")
	}

	tasks, err := s.Tasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.ID != created.ID || got.Title != "Buy milk" || got.Priority != model.PriorityHigh {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Fatalf("expected due date %s, got %v", due, got.DueAt)
	}
}

func TestLocalRejectsEmptyTitle(t *testing.T) {
	s := newTestLocal(t)

	if _, err := s.Add(context.Background(), TaskInput{Title: "   "}); !goerrors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
}

func TestLocalUpdate(t *testing.T) {
	s := newTestLocal(t)

	created, err := s.Add(context.Background(), TaskInput{Title: "Draft", Priority: model.PriorityLow})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	due := time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC)
	updated, err := s.Update(context.Background(), created.ID, TaskInput{Title: "Final", Priority: model.PriorityHigh, DueAt: &due})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Title != "Final" || updated.Priority != model.PriorityHigh {
		t.Fatalf("update not applied: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected created-at to be immutable")
	}

	if _, err := s.Update(context.Background(), "missing", TaskInput{Title: "x", Priority: model.PriorityLow}); !goerrors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalToggleCompleteIsIdempotentInPairs(t *testing.T) {
	s := newTestLocal(t)

	due := time.Date(2024, time.September, 9, 0, 0, 0, 0, time.UTC)
	created, err := s.Add(context.Background(), TaskInput{Title: "Flip me", Priority: model.PriorityMedium, DueAt: &due})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	once, err := s.ToggleComplete(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !once.Completed {
		t.Fatalf("expected completed after first toggle")
	}
	if once.Title != created.Title || once.Priority != created.Priority || once.DueAt == nil || !once.DueAt.Equal(due) {
		t.Fatalf("toggle touched other fields: %+v", once)
	}

	twice, err := s.ToggleComplete(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("toggle again: %v", err)
	}
	if twice.Completed {
		t.Fatalf("expected original state after second toggle")
	}

	if _, err := s.ToggleComplete(context.Background(), "missing"); !goerrors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalDeleteTwiceReportsNotFound(t *testing.T) {
	s := newTestLocal(t)

	created, err := s.Add(context.Background(), TaskInput{Title: "Remove", Priority: model.PriorityLow})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	if err := s.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(context.Background(), created.ID); !goerrors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	tasks, err := s.Tasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty collection, got %d", len(tasks))
	}
}

func TestLocalSubscribeDeliversSnapshots(t *testing.T) {
	s := newTestLocal(t)

	if _, err := s.Add(context.Background(), TaskInput{Title: "First", Priority: model.PriorityLow}); err != nil {
		t.Fatalf("add task: %v", err)
	}

	var snapshots [][]model.Task
	cancel, err := s.Subscribe(func(tasks []model.Task) {
		snapshots = append(snapshots, tasks)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if len(snapshots) != 1 || len(snapshots[0]) != 1 {
		t.Fatalf("expected immediate snapshot with 1 task, got %v", snapshots)
	}

	if _, err := s.Add(context.Background(), TaskInput{Title: "Second", Priority: model.PriorityHigh}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	if len(snapshots) != 2 || len(snapshots[1]) != 2 {
		t.Fatalf("expected redelivered snapshot with 2 tasks, got %d snapshots", len(snapshots))
	}

	// Snapshots are newest-first.
	if snapshots[1][0].Title != "Second" {
		t.Fatalf("expected newest task first, got %q", snapshots[1][0].Title)
	}

	cancel()
	if _, err := s.Add(context.Background(), TaskInput{Title: "Third", Priority: model.PriorityLow}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected no delivery after cancel, got %d snapshots", len(snapshots))
	}
}

func TestLocalRollsBackWhenPersistFails(t *testing.T) {
	db, err := OpenLocalDB(filepath.Join(t.TempDir(), "daygrid.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	s, err := NewLocal(db, "alice")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	created, err := s.Add(context.Background(), TaskInput{Title: "Keep", Priority: model.PriorityLow})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	// Every write fails from here on; the in-memory collection must
	// stay what was last persisted.
	_ = db.Close()

	if _, err := s.Add(context.Background(), TaskInput{Title: "Lost", Priority: model.PriorityHigh}); err == nil {
		t.Fatalf("expected persist error on add")
	}
	tasks, err := s.Tasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("expected failed add to leave no phantom task, got %v", tasks)
	}

	if _, err := s.Update(context.Background(), created.ID, TaskInput{Title: "Renamed", Priority: model.PriorityHigh}); err == nil {
		t.Fatalf("expected persist error on update")
	}
	tasks, _ = s.Tasks(context.Background())
	if tasks[0].Title != "Keep" || tasks[0].Priority != model.PriorityLow {
		t.Fatalf("expected failed update to be rolled back, got %+v", tasks[0])
	}

	if _, err := s.ToggleComplete(context.Background(), created.ID); err == nil {
		t.Fatalf("expected persist error on toggle")
	}
	tasks, _ = s.Tasks(context.Background())
	if tasks[0].Completed {
		t.Fatalf("expected failed toggle to be rolled back")
	}

	if err := s.Delete(context.Background(), created.ID); err == nil {
		t.Fatalf("expected persist error on delete")
	}
	tasks, _ = s.Tasks(context.Background())
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("expected failed delete to be rolled back, got %v", tasks)
	}
}

func TestLocalSubscribeSerializesWithMutations(t *testing.T) {
	s := newTestLocal(t)

	const adds = 25
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < adds; i++ {
			if _, err := s.Add(context.Background(), TaskInput{Title: fmt.Sprintf("task %d", i), Priority: model.PriorityLow}); err != nil {
				t.Errorf("add task %d: %v", i, err)
				return
			}
		}
	}()

	var mu sync.Mutex
	var last []model.Task
	cancel, err := s.Subscribe(func(tasks []model.Task) {
		mu.Lock()
		last = tasks
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	<-done

	// Delivery is serialized with mutations, so once the last Add
	// returned its snapshot has been delivered and nothing staler can
	// arrive after it.
	tasks, err := s.Tasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(last) != len(tasks) {
		t.Fatalf("expected final snapshot to match store state: %d vs %d", len(last), len(tasks))
	}
}

func TestLocalPersistsAcrossReopen(t *testing.T) {
	db, err := OpenLocalDB(filepath.Join(t.TempDir(), "daygrid.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	first, err := NewLocal(db, "alice")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	created, err := first.Add(context.Background(), TaskInput{Title: "Durable", Priority: model.PriorityMedium})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	second, err := NewLocal(db, "alice")
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	tasks, err := second.Tasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("expected persisted task %s, got %v", created.ID, tasks)
	}
}

func TestLocalUsersAreIsolated(t *testing.T) {
	db, err := OpenLocalDB(filepath.Join(t.TempDir(), "daygrid.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	alice, err := NewLocal(db, "alice")
	if err != nil {
		t.Fatalf("open alice: %v", err)
	}
	if _, err := alice.Add(context.Background(), TaskInput{Title: "Alice's task", Priority: model.PriorityLow}); err != nil {
		t.Fatalf("add task: %v", err)
	}

	bob, err := NewLocal(db, "bob")
	if err != nil {
		t.Fatalf("open bob: %v", err)
	}
	tasks, err := bob.Tasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected bob to start empty, got %d tasks", len(tasks))
	}
}

func TestDecodeSlotSkipsMalformedEntries(t *testing.T) {
	value := `[
		{"id":"ok","title":"Good","priority":"high","created_at":"2024-01-01T00:00:00Z"},
		{"id":"bad-priority","title":"Bad","priority":"urgent","created_at":"2024-01-01T00:00:00Z"},
		"not an object"
	]`

	tasks := decodeSlot("alice", value)
	if len(tasks) != 1 || tasks[0].ID != "ok" {
		t.Fatalf("expected only the valid entry, got %v", tasks)
	}

	if tasks := decodeSlot("alice", "{corrupt"); tasks != nil {
		t.Fatalf("expected corrupt slot to yield empty collection, got %v", tasks)
	}
}

func TestUsernameSlot(t *testing.T) {
	db, err := OpenLocalDB(filepath.Join(t.TempDir(), "daygrid.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	saved, err := LoadUsername(context.Background(), db)
	if err != nil {
		t.Fatalf("load username: %v", err)
	}
	if saved != "" {
		t.Fatalf("expected no saved username, got %q", saved)
	}

	if err := SaveUsername(context.Background(), db, "carol"); err != nil {
		t.Fatalf("save username: %v", err)
	}
	if err := SaveUsername(context.Background(), db, "dave"); err != nil {
		t.Fatalf("save username again: %v", err)
	}

	saved, err = LoadUsername(context.Background(), db)
	if err != nil {
		t.Fatalf("load username: %v", err)
	}
	if saved != "dave" {
		t.Fatalf("expected 'dave', got %q", saved)
	}
}
