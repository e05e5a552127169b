package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"

	"daygrid/internal/model"
)

var (
	// ErrNotFound reports an update, delete or toggle against an id the
	// store does not hold.
	ErrNotFound = goerrors.New("no such task")
	// ErrEmptyTitle reports a task input whose title is blank.
	ErrEmptyTitle = goerrors.New("task title is required")
)

// TaskInput carries the caller-supplied task fields. The store assigns
// ID and CreatedAt.
type TaskInput struct {
	Title    string
	Priority model.Priority
	DueAt    *time.Time
}

func (in TaskInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// Listener receives full snapshots of the task collection, never
// deltas. Snapshots arrive in the order they were taken. A listener
// must treat the slice as read-only and must not call back into the
// store; it may run with the store's delivery lock held.
type Listener func(tasks []model.Task)

// Store is the task collection for one username. Local and Remote
// implement the same contract; consumers depend only on this interface.
type Store interface {
	Username() string
	Tasks(ctx context.Context) ([]model.Task, error)
	Add(ctx context.Context, input TaskInput) (model.Task, error)
	Update(ctx context.Context, id string, input TaskInput) (model.Task, error)
	Delete(ctx context.Context, id string) error
	ToggleComplete(ctx context.Context, id string) (model.Task, error)
	// Subscribe delivers the current snapshot immediately and a fresh
	// snapshot after every observed change. The returned func cancels
	// the subscription.
	Subscribe(listener Listener) (func(), error)
	Close() error
}

// notifier fans snapshots out to registered listeners. Shared by both
// store variants.
type notifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func (n *notifier) add(listener Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listeners == nil {
		n.listeners = make(map[int]Listener)
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = listener

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

func (n *notifier) broadcast(tasks []model.Task) {
	n.mu.Lock()
	listeners := make([]Listener, 0, len(n.listeners))
	for _, listener := range n.listeners {
		listeners = append(listeners, listener)
	}
	n.mu.Unlock()

	for _, listener := range listeners {
		listener(tasks)
	}
}

func (n *notifier) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = nil
}

// sortSnapshot orders a snapshot the way subscriptions deliver it:
// newest first, id as tie-break. Both variants use the same order so
// consumers cannot tell them apart.
func sortSnapshot(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
