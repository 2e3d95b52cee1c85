// Package integration provides a reusable test harness for end-to-end
// integration testing of the charlist server. It starts the full HTTP surface
// over the production fetcher chain, pointed at a mock characters API.
package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pitabwire/charlist/internal/config"
	"github.com/pitabwire/charlist/internal/fetcher"
	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/internal/session"
	"github.com/pitabwire/charlist/internal/transport"
	"github.com/pitabwire/charlist/model"
)

// TestHarness encapsulates a fully wired charlist instance backed by a mock
// characters API.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	api    *MockAPI

	// Internal components exposed for advanced test scenarios.
	Config   *config.Config
	Fetcher  *fetcher.HTTPFetcher
	Cache    *fetcher.CachingFetcher
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
}

// HarnessOption configures the test harness.
type HarnessOption func(*config.Config)

// WithCircuitBreaker sets the upstream circuit breaker configuration.
func WithCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(c *config.Config) {
		c.API.CircuitBreaker = cb
	}
}

// WithRetry sets the upstream retry configuration.
func WithRetry(r config.RetryConfig) HarnessOption {
	return func(c *config.Config) {
		c.API.Retry = r
	}
}

// WithCacheTTL sets the page cache TTL. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) HarnessOption {
	return func(c *config.Config) {
		c.API.Cache.TTL = ttl
	}
}

// WithSessions sets the session manager configuration.
func WithSessions(s config.SessionsConfig) HarnessOption {
	return func(c *config.Config) {
		c.Sessions = s
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *config.Config) {
		c.Server.HandlerTimeout = d
	}
}

// NewTestHarness creates and starts a full charlist test instance. The
// default roster is two pages of characters; see DefaultRoster.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	h := &TestHarness{t: t}

	// Step 1: Start the mock characters API.
	h.api = newMockAPI(t)
	h.api.SetRoster(DefaultRoster()...)

	// Step 2: Build config with test-friendly timings.
	cfg := config.Defaults()
	cfg.API.BaseURL = h.api.URL()
	cfg.API.Timeout = 5 * time.Second
	cfg.API.Retry = config.RetryConfig{
		MaxAttempts:       2,
		BackoffInitial:    5 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffMax:        20 * time.Millisecond,
	}
	cfg.Sessions.StreamKeepAlive = 0
	cfg.Server.HandlerTimeout = 10 * time.Second
	cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid harness config: %v", err)
	}
	h.Config = cfg

	// Step 3: Metrics on a private registry.
	h.Registry = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Registry)

	// Step 4: Fetcher chain, as in the server binary.
	httpFetcher, err := fetcher.NewHTTPFetcher(cfg.API, fetcher.WithMetrics(h.Metrics))
	if err != nil {
		t.Fatalf("build fetcher: %v", err)
	}
	h.Fetcher = httpFetcher
	h.Cache = fetcher.NewCachingFetcher(httpFetcher, cfg.API.Cache.TTL, cfg.API.Cache.MaxEntries, h.Metrics, nil)

	// Step 5: Session manager.
	h.Sessions = session.NewManager(fetcher.NewInstrumentedFetcher(h.Cache), cfg.Sessions, h.Metrics, nil)

	// Step 6: Router with the full middleware chain.
	router := transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Sessions: h.Sessions,
		Metrics:  h.Metrics,
		Readiness: observability.ReadinessChecks{
			AcceptingSessions: h.Sessions.Accepting,
			Upstream:          httpFetcher.Breaker(),
		},
		MetricsHandler: observability.HandlerFor(h.Registry),
	})

	// Step 7: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.Sessions.CloseAll()
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// API returns the mock characters API.
func (h *TestHarness) API() *MockAPI {
	return h.api
}

// --- HTTP client helpers ---

// GET performs a GET request.
func (h *TestHarness) GET(path string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, nil)
}

// GETWithHeaders performs a GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, headers)
}

// POST performs a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, nil)
}

// DELETE performs a DELETE request.
func (h *TestHarness) DELETE(path string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, nil, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Session helpers ---

// CreateSession opens a session and returns its id.
func (h *TestHarness) CreateSession(t *testing.T) string {
	t.Helper()
	var created struct {
		ID    string      `json:"id"`
		State model.State `json:"state"`
	}
	h.AssertJSON(t, h.POST("/v1/sessions", nil), http.StatusCreated, &created)
	if created.ID == "" {
		t.Fatal("created session has no id")
	}
	return created.ID
}

// Send posts an event to a session and expects it to be accepted.
func (h *TestHarness) Send(t *testing.T, id string, event map[string]any) {
	t.Helper()
	resp := h.POST("/v1/sessions/"+id+"/events", event)
	h.AssertStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()
}

// State returns the latest snapshot of a session.
func (h *TestHarness) State(t *testing.T, id string) model.State {
	t.Helper()
	var s model.State
	h.AssertJSON(t, h.GET("/v1/sessions/"+id+"/state"), http.StatusOK, &s)
	return s
}

// WaitForState polls a session until pred holds or the timeout expires.
func (h *TestHarness) WaitForState(t *testing.T, id string, timeout time.Duration, pred func(model.State) bool) model.State {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		s := h.State(t, id)
		if pred(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state; last = %s", FormatJSON(s))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Stream opens the snapshot stream of a session. The stream is closed when
// the test completes.
func (h *TestHarness) Stream(t *testing.T, id string) *StateStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, "GET", h.server.URL+"/v1/sessions/"+id+"/stream", nil)
	if err != nil {
		cancel()
		t.Fatalf("create stream request: %v", err)
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		resp.Body.Close()
		t.Fatalf("stream status = %d, want 200", resp.StatusCode)
	}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return &StateStream{scanner: bufio.NewScanner(resp.Body)}
}

// StateStream reads server-sent snapshot events.
type StateStream struct {
	scanner *bufio.Scanner
}

// Next returns the next snapshot. ok is false once the server sends the
// closed event or the stream ends.
func (s *StateStream) Next(t *testing.T) (model.State, bool) {
	t.Helper()
	var event, data string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			if event == "closed" {
				return model.State{}, false
			}
			var st model.State
			if err := json.Unmarshal([]byte(data), &st); err != nil {
				t.Fatalf("decode stream data %q: %v", data, err)
			}
			return st, true
		}
	}
	return model.State{}, false
}

// NextMatching skips snapshots until pred holds.
func (s *StateStream) NextMatching(t *testing.T, pred func(model.State) bool) model.State {
	t.Helper()
	for {
		st, ok := s.Next(t)
		if !ok {
			t.Fatal("stream ended before a matching snapshot")
		}
		if pred(st) {
			return st
		}
	}
}

// --- Fixtures ---

// CharacterFixture returns one characters API result object.
func CharacterFixture(id int, name, status, species, gender string) map[string]any {
	return map[string]any{
		"id":      id,
		"name":    name,
		"status":  status,
		"species": species,
		"gender":  gender,
		"image":   fmt.Sprintf("https://rickandmortyapi.com/api/character/avatar/%d.jpeg", id),
	}
}

// PageFixture returns a characters API list response. An empty next marks the
// last page.
func PageFixture(results []map[string]any, pages int, next string) map[string]any {
	info := map[string]any{
		"count": len(results) * pages,
		"pages": pages,
		"next":  nil,
		"prev":  nil,
	}
	if next != "" {
		info["next"] = next
	}
	return map[string]any{
		"info":    info,
		"results": results,
	}
}

// DefaultRoster returns two pages of characters. Page 2 holds one character
// whose species the client does not recognize.
func DefaultRoster() [][]map[string]any {
	return [][]map[string]any{
		{
			CharacterFixture(1, "Rick Sanchez", "Alive", "Human", "Male"),
			CharacterFixture(2, "Morty Smith", "Alive", "Human", "Male"),
			CharacterFixture(3, "Summer Smith", "Alive", "Human", "Female"),
		},
		{
			CharacterFixture(4, "Beth Smith", "Alive", "Human", "Female"),
			CharacterFixture(5, "Abadango Cluster Princess", "Alive", "Alien", "Female"),
			CharacterFixture(6, "Unity", "Alive", "Hivemind", "Genderless"),
			CharacterFixture(7, "Squanchy", "unknown", "Humanoid", "Male"),
		},
	}
}

// FormatJSON converts a value to indented JSON for test output.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
