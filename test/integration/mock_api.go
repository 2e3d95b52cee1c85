package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// MockAPI is an HTTP test server that simulates the characters API. Each page
// can be given a queue of responses; unconfigured pages are served from the
// roster set with SetRoster.
type MockAPI struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.RWMutex
	pages    map[int]*pageConfig
	received map[int][]*RecordedRequest
	roster   [][]map[string]any
}

// RecordedRequest captures a request received by the mock API.
type RecordedRequest struct {
	Method     string
	Path       string
	Page       int
	Headers    http.Header
	ReceivedAt time.Time
}

type pageConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

// PageMock is a builder for configuring responses for one page number.
type PageMock struct {
	api  *MockAPI
	page int
}

func newMockAPI(t *testing.T) *MockAPI {
	t.Helper()

	api := &MockAPI{
		t:        t,
		pages:    make(map[int]*pageConfig),
		received: make(map[int][]*RecordedRequest),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/character", api.handleCharacters)
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)

	return api
}

// URL returns the API base URL, including the /api/ prefix.
func (api *MockAPI) URL() string {
	return api.server.URL + "/api/"
}

// SetRoster sets the default pages. Page n (1-based) is roster[n-1]; pages past
// the end answer 404 like the real API.
func (api *MockAPI) SetRoster(pages ...[]map[string]any) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.roster = pages
}

// OnPage returns a builder for configuring responses for the given page.
func (api *MockAPI) OnPage(page int) *PageMock {
	return &PageMock{api: api, page: page}
}

// RespondWith queues a response with the given status and body.
func (pm *PageMock) RespondWith(status int, body any) *PageMock {
	pm.api.addResponse(pm.page, &mockResponse{status: status, body: body})
	return pm
}

// RespondWithDelay queues a delayed response to simulate a slow API.
func (pm *PageMock) RespondWithDelay(delay time.Duration, status int, body any) *PageMock {
	pm.api.addResponse(pm.page, &mockResponse{status: status, body: body, delay: delay})
	return pm
}

// RespondWithConnectionError queues a response that drops the connection.
func (pm *PageMock) RespondWithConnectionError() *PageMock {
	pm.api.addResponse(pm.page, &mockResponse{connError: true})
	return pm
}

func (api *MockAPI) addResponse(page int, resp *mockResponse) {
	api.mu.Lock()
	defer api.mu.Unlock()
	cfg, ok := api.pages[page]
	if !ok {
		cfg = &pageConfig{}
		api.pages[page] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (api *MockAPI) handleCharacters(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid page"})
			return
		}
		page = n
	}

	api.mu.Lock()
	api.received[page] = append(api.received[page], &RecordedRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		Page:       page,
		Headers:    r.Header.Clone(),
		ReceivedAt: time.Now(),
	})
	api.mu.Unlock()

	resp := api.nextResponse(page)
	if resp == nil {
		api.serveRoster(w, page)
		return
	}

	if resp.connError {
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			if conn != nil {
				conn.Close()
			}
		}
		return
	}

	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, resp.status, resp.body)
}

func (api *MockAPI) serveRoster(w http.ResponseWriter, page int) {
	api.mu.RLock()
	roster := api.roster
	api.mu.RUnlock()

	if page < 1 || page > len(roster) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "There is nothing here"})
		return
	}
	next := ""
	if page < len(roster) {
		next = fmt.Sprintf("%scharacter?page=%d", api.URL(), page+1)
	}
	writeJSON(w, http.StatusOK, PageFixture(roster[page-1], len(roster), next))
}

func (api *MockAPI) nextResponse(page int) *mockResponse {
	api.mu.RLock()
	cfg, ok := api.pages[page]
	api.mu.RUnlock()
	if !ok {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if len(cfg.responses) == 0 {
		return nil
	}
	idx := cfg.current
	if idx >= len(cfg.responses) {
		// Repeat the last response for subsequent calls.
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// Calls returns how many times the given page was requested.
func (api *MockAPI) Calls(page int) int {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return len(api.received[page])
}

// AssertCalled verifies that the page was requested the expected number of times.
func (api *MockAPI) AssertCalled(t *testing.T, page, expected int) {
	t.Helper()
	if actual := api.Calls(page); actual != expected {
		t.Errorf("mock API: page %d requested %d times, want %d", page, actual, expected)
	}
}

// LastRequest returns the last request for the given page, or nil.
func (api *MockAPI) LastRequest(page int) *RecordedRequest {
	api.mu.RLock()
	defer api.mu.RUnlock()
	reqs := api.received[page]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// ResetPage clears recorded requests and queued responses for one page.
func (api *MockAPI) ResetPage(page int) {
	api.mu.Lock()
	defer api.mu.Unlock()
	delete(api.pages, page)
	delete(api.received, page)
}
