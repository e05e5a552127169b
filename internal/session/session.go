package session

import (
	"fmt"
	"strings"
	"sync"

	"daygrid/internal/store"
)

// Factory builds a store for a username. The binary wires this to the
// local or remote variant; everything above it only sees store.Store.
type Factory func(username string) (store.Store, error)

// Session binds a username to its store. A session is replaced, never
// mutated, when the username changes.
type Session struct {
	Username string
	Store    store.Store
}

// Manager owns the current session and the username handover. The old
// store is closed (tearing down its subscription) before the new
// session becomes visible, so stale-user snapshots cannot race a
// subscription on the replacement. A failed switch leaves the current
// session in place.
type Manager struct {
	factory Factory
	save    func(username string) error

	mu      sync.Mutex
	current *Session
}

// NewManager opens the initial session. save persists the chosen
// username across restarts.
func NewManager(factory Factory, save func(username string) error, username string) (*Manager, error) {
	m := &Manager{factory: factory, save: save}
	if _, err := m.Switch(username); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Switch replaces the visible task set with the named user's. It is a
// swap, not a merge.
func (m *Manager) Switch(username string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Username == username {
		return m.current, nil
	}

	st, err := m.factory(username)
	if err != nil {
		return nil, fmt.Errorf("open store for %s: %w", username, err)
	}

	if m.save != nil {
		if err := m.save(username); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("save username: %w", err)
		}
	}

	if m.current != nil {
		if err := m.current.Store.Close(); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("close store for %s: %w", m.current.Username, err)
		}
	}

	m.current = &Session{Username: username, Store: st}
	return m.current, nil
}

// Close tears the active session down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Store.Close()
	m.current = nil
	return err
}
