package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"daygrid/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

const usernameSlot = "username"

// OpenLocalDB opens the sqlite file backing the local slot storage and
// applies the schema. The handle is shared across username switches;
// each Local store borrows it.
func OpenLocalDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), string(schemaSQL)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}

// Local is the synchronous store variant. The whole collection for one
// username lives in a single slot as a JSON array and is rewritten on
// every mutation; last full write wins.
type Local struct {
	db       *sql.DB
	username string

	mu    sync.Mutex
	tasks []model.Task

	notifier notifier
}

// slotTask is the serialized task shape inside the tasks slot.
type slotTask struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Completed bool       `json:"completed"`
	Priority  string     `json:"priority"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewLocal loads the task slot for username. A missing or unparseable
// slot yields an empty collection; individually malformed entries are
// skipped, not fatal.
func NewLocal(db *sql.DB, username string) (*Local, error) {
	s := &Local{db: db, username: username}

	var value string
	err := db.QueryRowContext(context.Background(), "SELECT value FROM slots WHERE key = ?", s.slotKey()).Scan(&value)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tasks for %s: %w", username, err)
	}

	s.tasks = decodeSlot(username, value)
	return s, nil
}

func (s *Local) slotKey() string {
	return "tasks/" + s.username
}

func decodeSlot(username, value string) []model.Task {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		log.Printf("tasks slot for %s is unreadable, starting empty: %v", username, err)
		return nil
	}

	tasks := make([]model.Task, 0, len(raw))
	for _, entry := range raw {
		var st slotTask
		if err := json.Unmarshal(entry, &st); err != nil {
			log.Printf("skipping unreadable task entry for %s: %v", username, err)
			continue
		}
		priority, err := model.ParsePriority(st.Priority)
		if err != nil {
			log.Printf("skipping task %s: %v", st.ID, err)
			continue
		}
		tasks = append(tasks, model.Task{
			ID:        st.ID,
			Title:     st.Title,
			Completed: st.Completed,
			Priority:  priority,
			DueAt:     st.DueAt,
			CreatedAt: st.CreatedAt,
		})
	}
	return tasks
}

func (s *Local) Username() string {
	return s.username
}

func (s *Local) Tasks(ctx context.Context) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *Local) Add(ctx context.Context, input TaskInput) (model.Task, error) {
	if err := input.validate(); err != nil {
		return model.Task{}, err
	}

	task := model.Task{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     input.Title,
		Priority:  input.Priority,
		DueAt:     input.DueAt,
		CreatedAt: time.Now().Truncate(time.Microsecond),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.backupLocked()
	s.tasks = append(s.tasks, task)
	snapshot, err := s.persistLocked(ctx)
	if err != nil {
		s.tasks = backup
		return model.Task{}, err
	}

	s.notifier.broadcast(snapshot)
	return task, nil
}

func (s *Local) Update(ctx context.Context, id string, input TaskInput) (model.Task, error) {
	if err := input.validate(); err != nil {
		return model.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(id)
	if index < 0 {
		return model.Task{}, ErrNotFound
	}
	backup := s.backupLocked()
	s.tasks[index].Title = input.Title
	s.tasks[index].Priority = input.Priority
	s.tasks[index].DueAt = input.DueAt
	updated := s.tasks[index]
	snapshot, err := s.persistLocked(ctx)
	if err != nil {
		s.tasks = backup
		return model.Task{}, err
	}

	s.notifier.broadcast(snapshot)
	return updated, nil
}

func (s *Local) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(id)
	if index < 0 {
		return ErrNotFound
	}
	backup := s.backupLocked()
	s.tasks = append(s.tasks[:index], s.tasks[index+1:]...)
	snapshot, err := s.persistLocked(ctx)
	if err != nil {
		s.tasks = backup
		return err
	}

	s.notifier.broadcast(snapshot)
	return nil
}

// ToggleComplete flips the completed flag only; every other field is
// left untouched.
func (s *Local) ToggleComplete(ctx context.Context, id string) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexLocked(id)
	if index < 0 {
		return model.Task{}, ErrNotFound
	}
	backup := s.backupLocked()
	s.tasks[index].Completed = !s.tasks[index].Completed
	updated := s.tasks[index]
	snapshot, err := s.persistLocked(ctx)
	if err != nil {
		s.tasks = backup
		return model.Task{}, err
	}

	s.notifier.broadcast(snapshot)
	return updated, nil
}

// Subscribe registers and delivers the initial snapshot under the
// mutation lock, so a concurrent mutation can neither slip between
// registration and first delivery nor be overtaken by it.
func (s *Local) Subscribe(listener Listener) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel := s.notifier.add(listener)
	listener(s.snapshotLocked())
	return cancel, nil
}

// Close detaches listeners. The sqlite handle belongs to the caller and
// stays open across username switches.
func (s *Local) Close() error {
	s.notifier.clear()
	return nil
}

// backupLocked copies the collection so a failed persist can restore
// the pre-mutation state.
func (s *Local) backupLocked() []model.Task {
	return append([]model.Task(nil), s.tasks...)
}

func (s *Local) indexLocked(id string) int {
	for i, task := range s.tasks {
		if task.ID == id {
			return i
		}
	}
	return -1
}

func (s *Local) snapshotLocked() []model.Task {
	snapshot := make([]model.Task, len(s.tasks))
	copy(snapshot, s.tasks)
	sortSnapshot(snapshot)
	return snapshot
}

// persistLocked rewrites the whole slot and returns the snapshot to
// broadcast.
func (s *Local) persistLocked(ctx context.Context) ([]model.Task, error) {
	serialized := make([]slotTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		serialized = append(serialized, slotTask{
			ID:        task.ID,
			Title:     task.Title,
			Completed: task.Completed,
			Priority:  task.Priority.String(),
			DueAt:     task.DueAt,
			CreatedAt: task.CreatedAt,
		})
	}

	payload, err := json.Marshal(serialized)
	if err != nil {
		return nil, fmt.Errorf("serialize tasks: %w", err)
	}

	if err := writeSlot(ctx, s.db, s.slotKey(), string(payload)); err != nil {
		return nil, fmt.Errorf("persist tasks for %s: %w", s.username, err)
	}

	return s.snapshotLocked(), nil
}

func writeSlot(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO slots (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}

// SaveUsername persists the active username in its own slot.
func SaveUsername(ctx context.Context, db *sql.DB, username string) error {
	return writeSlot(ctx, db, usernameSlot, username)
}

// LoadUsername returns the saved username, or "" when none was saved.
func LoadUsername(ctx context.Context, db *sql.DB) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM slots WHERE key = ?", usernameSlot).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
