package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"daygrid/internal/model"
)

const notifyChannel = "task_events"

// OpenRemotePool connects to Postgres and makes sure the document table
// exists. Like the sqlite handle, the pool is shared across username
// switches.
func OpenRemotePool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := ensureTable(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func ensureTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_tasks (
			username   TEXT NOT NULL,
			id         TEXT NOT NULL,
			title      TEXT NOT NULL,
			completed  BOOLEAN NOT NULL DEFAULT FALSE,
			priority   TEXT NOT NULL,
			due_at     TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (username, id)
		)`)
	if err != nil {
		return fmt.Errorf("ensure user_tasks table: %w", err)
	}
	_, err = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_user_tasks_created ON user_tasks(username, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("ensure user_tasks index: %w", err)
	}
	return nil
}

// Remote is the asynchronous store variant. Documents live under
// (username, id) in Postgres; every mutation notifies the task_events
// channel and a dedicated listening connection re-queries the full
// collection and redelivers it as a snapshot. There is no optimistic
// echo: consumers see a change only once the snapshot arrives, whether
// it came from this client or another one.
type Remote struct {
	pool     *pgxpool.Pool
	username string

	notifier notifier

	// deliverMu serializes snapshot capture with delivery, so a
	// subscription's initial snapshot cannot overtake a fresher one
	// from the listen goroutine.
	deliverMu sync.Mutex

	mu         sync.Mutex
	listenStop context.CancelFunc
	listenDone chan struct{}
	closed     bool
}

func NewRemote(pool *pgxpool.Pool, username string) *Remote {
	return &Remote{pool: pool, username: username}
}

func (r *Remote) Username() string {
	return r.username
}

func (r *Remote) Tasks(ctx context.Context) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, completed, priority, due_at, created_at
		FROM user_tasks WHERE username = $1
		ORDER BY created_at DESC, id ASC`, r.username)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", r.username, err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var task model.Task
		var priority string
		if err := rows.Scan(&task.ID, &task.Title, &task.Completed, &priority, &task.DueAt, &task.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := model.ParsePriority(priority)
		if err != nil {
			log.Printf("skipping task %s: %v", task.ID, err)
			continue
		}
		task.Priority = parsed
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

func (r *Remote) Add(ctx context.Context, input TaskInput) (model.Task, error) {
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

	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_tasks (username, id, title, completed, priority, due_at, created_at)
		VALUES ($1, $2, $3, FALSE, $4, $5, $6)`,
		r.username, task.ID, task.Title, task.Priority.String(), task.DueAt, task.CreatedAt)
	if err != nil {
		return model.Task{}, fmt.Errorf("add task: %w", err)
	}

	if err := r.notifyChanged(ctx); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (r *Remote) Update(ctx context.Context, id string, input TaskInput) (model.Task, error) {
	if err := input.validate(); err != nil {
		return model.Task{}, err
	}

	task := model.Task{ID: id, Title: input.Title, Priority: input.Priority, DueAt: input.DueAt}
	err := r.pool.QueryRow(ctx, `
		UPDATE user_tasks SET title = $1, priority = $2, due_at = $3
		WHERE username = $4 AND id = $5
		RETURNING completed, created_at`,
		input.Title, input.Priority.String(), input.DueAt, r.username, id).
		Scan(&task.Completed, &task.CreatedAt)
	if err == pgx.ErrNoRows {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}

	if err := r.notifyChanged(ctx); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (r *Remote) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_tasks WHERE username = $1 AND id = $2`, r.username, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.notifyChanged(ctx)
}

// ToggleComplete flips the completed flag in place; no other column is
// touched.
func (r *Remote) ToggleComplete(ctx context.Context, id string) (model.Task, error) {
	var task model.Task
	var priority string
	err := r.pool.QueryRow(ctx, `
		UPDATE user_tasks SET completed = NOT completed
		WHERE username = $1 AND id = $2
		RETURNING id, title, completed, priority, due_at, created_at`,
		r.username, id).
		Scan(&task.ID, &task.Title, &task.Completed, &priority, &task.DueAt, &task.CreatedAt)
	if err == pgx.ErrNoRows {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("toggle task %s: %w", id, err)
	}
	if task.Priority, err = model.ParsePriority(priority); err != nil {
		return model.Task{}, err
	}

	if err := r.notifyChanged(ctx); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (r *Remote) notifyChanged(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, r.username); err != nil {
		return fmt.Errorf("notify change: %w", err)
	}
	return nil
}

// Subscribe starts the listening connection on first use and delivers
// the current snapshot before returning.
func (r *Remote) Subscribe(listener Listener) (func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("store for %s is closed", r.username)
	}
	if r.listenDone == nil {
		ctx, stop := context.WithCancel(context.Background())
		r.listenStop = stop
		r.listenDone = make(chan struct{})
		go r.listen(ctx)
	}
	r.mu.Unlock()

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	snapshot, err := r.Tasks(context.Background())
	if err != nil {
		return nil, err
	}

	cancel := r.notifier.add(listener)
	listener(snapshot)
	return cancel, nil
}

func (r *Remote) listen(ctx context.Context) {
	defer close(r.listenDone)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.listenOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("task subscription for %s interrupted, retrying: %v", r.username, err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *Remote) listenOnce(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if notification.Payload != r.username {
			continue
		}
		r.deliverMu.Lock()
		snapshot, err := r.Tasks(ctx)
		if err != nil {
			r.deliverMu.Unlock()
			log.Printf("snapshot for %s failed: %v", r.username, err)
			continue
		}
		r.notifier.broadcast(snapshot)
		r.deliverMu.Unlock()
	}
}

// Close tears the listening connection down. Mandatory before opening a
// store for another username, otherwise stale-user snapshots race the
// new subscription. The pool itself belongs to the caller.
func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	stop, done := r.listenStop, r.listenDone
	r.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	r.notifier.clear()
	return nil
}
