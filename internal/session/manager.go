// Package session keeps one list controller per screen session and expires
// sessions nobody is watching.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/charlist/internal/config"
	"github.com/pitabwire/charlist/internal/controller"
	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/model"
)

// Reasons a session leaves the manager.
const (
	ReasonClosed   = "closed"
	ReasonExpired  = "expired"
	ReasonEvicted  = "evicted"
	ReasonShutdown = "shutdown"
)

// Session is one screen's controller plus its bookkeeping.
type Session struct {
	ID         string
	Controller *controller.Controller
	CreatedAt  time.Time

	lastSeen atomic.Int64
	streams  atomic.Int32
}

// LastSeen returns when the session was last accessed.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Attach marks a live stream on the session. Sessions with attached streams
// are never expired or evicted. The returned func detaches.
func (s *Session) Attach() func() {
	s.streams.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { s.streams.Add(-1) })
	}
}

// Streams returns the number of attached streams.
func (s *Session) Streams() int {
	return int(s.streams.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idle() bool {
	return s.streams.Load() == 0
}

// Manager owns the live sessions. It is safe for concurrent use.
type Manager struct {
	fetcher model.PageFetcher
	cfg     config.SessionsConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager whose controllers share fetcher.
func NewManager(fetcher model.PageFetcher, cfg config.SessionsConfig, metrics *observability.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		fetcher:  fetcher,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session. When max_sessions is reached the least
// recently seen session without attached streams is evicted; if every session
// is streaming a SESSION_LIMIT error is returned.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, model.NewUnavailableError("Service is shutting down")
	}

	var evicted *Session
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		evicted = m.oldestIdleLocked()
		if evicted == nil {
			m.mu.Unlock()
			return nil, model.NewSessionLimitError()
		}
		delete(m.sessions, evicted.ID)
	}

	now := m.now()
	id := uuid.New().String()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		Controller: controller.New(m.fetcher,
			controller.WithLogger(m.logger),
			controller.WithMetrics(m.metrics),
			controller.WithFetchTimeout(m.cfg.FetchTimeout),
			controller.WithQueueSize(m.cfg.QueueSize),
			controller.WithSessionID(id),
		),
	}
	s.touch(now)
	m.sessions[id] = s
	m.mu.Unlock()

	m.metrics.RecordSessionCreated()
	m.logger.Info("session created", zap.String("session_id", id))
	if evicted != nil {
		m.release(evicted, ReasonEvicted)
	}
	return s, nil
}

// Get returns the session and marks it as seen.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("session %q not found", id))
	}
	s.touch(m.now())
	return s, nil
}

// Close ends the session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("session %q not found", id))
	}
	m.release(s, ReasonClosed)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Accepting reports whether Create can currently succeed.
func (m *Manager) Accepting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}
	if m.cfg.MaxSessions <= 0 || len(m.sessions) < m.cfg.MaxSessions {
		return true
	}
	return m.oldestIdleLocked() != nil
}

// ExpireIdle closes every session without attached streams that has not been
// seen for the configured idle timeout. It returns how many were closed.
func (m *Manager) ExpireIdle() int {
	if m.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idle() && s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.release(s, ReasonExpired)
	}
	return len(expired)
}

// Run expires idle sessions every sweep interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.ExpireIdle(); n > 0 {
				m.logger.Info("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

// CloseAll ends every session and rejects further Create calls.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	clear(m.sessions)
	m.mu.Unlock()

	for _, s := range all {
		m.release(s, ReasonShutdown)
	}
}

func (m *Manager) oldestIdleLocked() *Session {
	var oldest *Session
	for _, s := range m.sessions {
		if !s.idle() {
			continue
		}
		if oldest == nil || s.lastSeen.Load() < oldest.lastSeen.Load() {
			oldest = s
		}
	}
	return oldest
}

func (m *Manager) release(s *Session, reason string) {
	s.Controller.Close()
	m.metrics.RecordSessionClosed(reason)
	m.logger.Info("session closed",
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
	)
}
