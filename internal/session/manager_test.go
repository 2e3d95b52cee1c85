package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/charlist/internal/config"
	"github.com/pitabwire/charlist/internal/fetcher"
	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/model"
)

// fakeClock is advanced manually by tests that never run the sweeper loop.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, cfg config.SessionsConfig) (*Manager, *fakeClock, *observability.Metrics) {
	t.Helper()
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	m := NewManager(fetcher.NewMockFetcher(), cfg, metrics, nil)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m.now = clock.now
	t.Cleanup(m.CloseAll)
	return m, clock, metrics
}

func errorCode(err error) string {
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ""
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionsConfig{})

	s, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", s.ID, err)
	}
	if s.Controller.State().Kind != model.StateLoading {
		t.Errorf("initial Kind = %v, want Loading", s.Controller.State().Kind)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Error("Get() returned a different session")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestManager_sessionsAreIndependent(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionsConfig{})
	a, _ := m.Create()
	b, _ := m.Create()
	if a.ID == b.ID {
		t.Fatal("sessions share an ID")
	}

	ch, unsubscribe := a.Controller.Subscribe(8)
	defer unsubscribe()
	a.Controller.Submit(model.ViewAppeared{})

	deadline := time.After(2 * time.Second)
	for loaded := false; !loaded; {
		select {
		case s := <-ch:
			loaded = s.IsLoaded()
		case <-deadline:
			t.Fatal("timed out waiting for Loaded")
		}
	}
	if b.Controller.State().Kind != model.StateLoading {
		t.Errorf("other session Kind = %v, want Loading", b.Controller.State().Kind)
	}
}

func TestManager_GetUnknown(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionsConfig{})

	_, err := m.Get("missing")
	if code := errorCode(err); code != model.ErrNotFound {
		t.Errorf("error code = %q, want %q", code, model.ErrNotFound)
	}
}

func TestManager_Close(t *testing.T) {
	m, _, metrics := newTestManager(t, config.SessionsConfig{})
	s, _ := m.Create()
	ch, _ := s.Controller.Subscribe(1)

	if err := m.Close(s.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := m.Get(s.ID); errorCode(err) != model.ErrNotFound {
		t.Errorf("Get after Close error = %v, want NOT_FOUND", err)
	}
	<-ch
	if _, ok := <-ch; ok {
		t.Error("controller subscription still open after Close")
	}
	if err := m.Close(s.ID); errorCode(err) != model.ErrNotFound {
		t.Errorf("second Close error = %v, want NOT_FOUND", err)
	}

	if got := testutil.ToFloat64(metrics.SessionsClosedTotal.WithLabelValues(ReasonClosed)); got != 1 {
		t.Errorf("closed sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.SessionsActive); got != 0 {
		t.Errorf("active sessions = %v, want 0", got)
	}
}

func TestManager_ExpireIdle(t *testing.T) {
	m, clock, metrics := newTestManager(t, config.SessionsConfig{IdleTimeout: time.Minute})

	stale, _ := m.Create()
	streaming, _ := m.Create()
	detach := streaming.Attach()
	defer detach()

	clock.advance(30 * time.Second)
	fresh, _ := m.Create()
	clock.advance(45 * time.Second)

	if n := m.ExpireIdle(); n != 1 {
		t.Fatalf("ExpireIdle() = %d, want 1", n)
	}
	if _, err := m.Get(stale.ID); err == nil {
		t.Error("stale session survived expiry")
	}
	if _, err := m.Get(streaming.ID); err != nil {
		t.Errorf("streaming session expired: %v", err)
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Errorf("fresh session expired: %v", err)
	}
	if got := testutil.ToFloat64(metrics.SessionsClosedTotal.WithLabelValues(ReasonExpired)); got != 1 {
		t.Errorf("expired sessions = %v, want 1", got)
	}
}

func TestManager_GetKeepsSessionAlive(t *testing.T) {
	m, clock, _ := newTestManager(t, config.SessionsConfig{IdleTimeout: time.Minute})
	s, _ := m.Create()

	clock.advance(50 * time.Second)
	m.Get(s.ID)
	clock.advance(50 * time.Second)

	if n := m.ExpireIdle(); n != 0 {
		t.Errorf("ExpireIdle() = %d, want 0", n)
	}
}

func TestManager_zeroIdleTimeoutNeverExpires(t *testing.T) {
	m, clock, _ := newTestManager(t, config.SessionsConfig{})
	m.Create()
	clock.advance(24 * time.Hour)

	if n := m.ExpireIdle(); n != 0 {
		t.Errorf("ExpireIdle() = %d, want 0", n)
	}
}

func TestManager_maxSessionsEvictsOldestIdle(t *testing.T) {
	m, clock, metrics := newTestManager(t, config.SessionsConfig{MaxSessions: 2})

	first, _ := m.Create()
	clock.advance(time.Second)
	second, _ := m.Create()
	clock.advance(time.Second)
	m.Get(first.ID)

	third, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := m.Get(second.ID); err == nil {
		t.Error("least recently seen session was not evicted")
	}
	if _, err := m.Get(first.ID); err != nil {
		t.Errorf("recently seen session evicted: %v", err)
	}
	if _, err := m.Get(third.ID); err != nil {
		t.Errorf("new session missing: %v", err)
	}
	if got := testutil.ToFloat64(metrics.SessionsClosedTotal.WithLabelValues(ReasonEvicted)); got != 1 {
		t.Errorf("evicted sessions = %v, want 1", got)
	}
}

func TestManager_limitWhenAllStreaming(t *testing.T) {
	m, _, _ := newTestManager(t, config.SessionsConfig{MaxSessions: 1})
	s, _ := m.Create()
	detach := s.Attach()

	if m.Accepting() {
		t.Error("Accepting() = true with every session streaming")
	}
	if _, err := m.Create(); errorCode(err) != model.ErrSessionLimit {
		t.Errorf("Create() error = %v, want SESSION_LIMIT", err)
	}

	detach()
	detach()
	if s.Streams() != 0 {
		t.Errorf("Streams() = %d, want 0", s.Streams())
	}
	if !m.Accepting() {
		t.Error("Accepting() = false after detach")
	}
}

func TestManager_CloseAll(t *testing.T) {
	m, _, metrics := newTestManager(t, config.SessionsConfig{})
	m.Create()
	m.Create()

	m.CloseAll()

	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	if m.Accepting() {
		t.Error("Accepting() = true after CloseAll")
	}
	if _, err := m.Create(); errorCode(err) != model.ErrUnavailable {
		t.Errorf("Create() error = %v, want UNAVAILABLE", err)
	}
	if got := testutil.ToFloat64(metrics.SessionsClosedTotal.WithLabelValues(ReasonShutdown)); got != 2 {
		t.Errorf("shutdown sessions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.SessionsCreatedTotal); got != 2 {
		t.Errorf("created sessions = %v, want 2", got)
	}
}

func TestManager_RunSweeps(t *testing.T) {
	m := NewManager(fetcher.NewMockFetcher(), config.SessionsConfig{
		IdleTimeout:   time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	}, nil, nil)
	defer m.CloseAll()
	m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after sweeping, want 0", m.Len())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
