// Package session keeps one generation pipeline per UI session and expires
// sessions that have gone quiet.
package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"postergen/internal/domain"
	"postergen/internal/infra"
	"postergen/internal/pipeline"
)

// DefaultTTL applies when Options.TTL is not positive.
const DefaultTTL = 30 * time.Minute

// Factory builds the pipeline owned by a new session.
type Factory func() *pipeline.Pipeline

// Session pairs an ID with its pipeline.
type Session struct {
	ID        string
	CreatedAt time.Time
	Pipeline  *pipeline.Pipeline

	lastSeen atomic.Int64
	watchers atomic.Int32
}

// LastSeen reports the last time the session was used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Watch marks a live event stream on the session. Watched sessions never
// expire; the returned func releases the mark.
func (s *Session) Watch() func() {
	s.watchers.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { s.watchers.Add(-1) })
	}
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Options configures a Manager.
type Options struct {
	Factory Factory
	TTL     time.Duration
	Logger  *infra.Logger
}

// Manager is a concurrency-safe session registry.
type Manager struct {
	factory Factory
	ttl     time.Duration
	logger  *infra.Logger
	now     func() time.Time
	newID   func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs an empty registry.
func NewManager(opts Options) *Manager {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	factory := opts.Factory
	if factory == nil {
		factory = func() *pipeline.Pipeline { return pipeline.New(pipeline.Options{Logger: logger}) }
	}
	return &Manager{
		factory:  factory,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
}

// TTL reports the idle expiry window.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create registers a new session with a fresh idle pipeline.
func (m *Manager) Create() *Session {
	now := m.now()
	s := &Session{ID: m.newID(), CreatedAt: now, Pipeline: m.factory()}
	s.touch(now)

	m.mu.Lock()
	m.sessions[s.ID] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info().Str("session_id", s.ID).Int("active", total).Msg("session: created")
	return s
}

// Get returns the session and refreshes its activity time.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Delete removes the session and closes its pipeline, cancelling any run.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.Pipeline.Close()
	m.logger.Info().Str("session_id", id).Msg("session: deleted")
	return nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs lists live session IDs in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Sweep expires unwatched sessions idle longer than the TTL and returns how
// many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.watchers.Load() > 0 {
			continue
		}
		if now.Sub(s.LastSeen()) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	active := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		s.Pipeline.Close()
		m.logger.Info().
			Str("session_id", s.ID).
			Dur("idle", now.Sub(s.LastSeen())).
			Msg("session: expired")
	}
	if len(expired) > 0 {
		m.logger.Info().Int("expired", len(expired)).Int("active", active).Msg("session: sweep finished")
	}
	return len(expired)
}

// RunSweeper sweeps on every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.ttl / 4
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close removes every session and closes their pipelines.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Pipeline.Close()
	}
}
