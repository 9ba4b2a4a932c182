package form

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Store holds the live sessions of the service in memory and ends those left
// idle for longer than the idle timeout.
type Store struct {
	deps Deps
	idle time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewStore creates an empty store. Every session it creates shares deps.
func NewStore(deps Deps, idle time.Duration) *Store {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Store{deps: deps, idle: idle, sessions: make(map[string]*Session)}
}

// Create starts a new session.
func (st *Store) Create() (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil, ErrSessionClosed
	}
	s := NewSession(uuid.NewString(), st.deps)
	st.sessions[s.ID()] = s
	st.gaugeLocked()
	st.deps.Logger.Info("session created", "session", s.ID())
	return s, nil
}

// Get returns a live session.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete ends a session.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
		st.gaugeLocked()
	}
	st.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	st.deps.Logger.Info("session ended", "session", id)
	return nil
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep ends every session idle for longer than the idle timeout and returns
// how many were ended.
func (st *Store) Sweep() int {
	cutoff := domain.Clock().Now().Add(-st.idle)

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.gaugeLocked()
	st.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		st.deps.Logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then ends every session.
func (st *Store) Run(ctx context.Context) error {
	interval := st.idle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := domain.Clock().NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st.Close()
			return nil
		case <-ticker.Chan():
			st.Sweep()
		}
	}
}

// Close ends every session and refuses new ones.
func (st *Store) Close() {
	st.mu.Lock()
	st.closed = true
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.gaugeLocked()
	st.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// CheckReadiness reports whether the store accepts sessions.
func (st *Store) CheckReadiness(_ context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return errors.New("session store closed")
	}
	return nil
}

func (st *Store) gaugeLocked() {
	if st.deps.Metrics != nil {
		st.deps.Metrics.SessionsActive.Set(float64(len(st.sessions)))
	}
}
