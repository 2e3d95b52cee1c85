package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pitabwire/charlist/model"
)

// --- Test helpers ---

func doRequest(h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	w := doRequest(h, "POST", "/v1/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var resp sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	return resp.ID
}

func postEvent(t *testing.T, h http.Handler, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(h, "POST", "/v1/sessions/"+id+"/events", []byte(body))
}

// waitForState polls the state endpoint until pred holds.
func waitForState(t *testing.T, h http.Handler, id string, pred func(model.State) bool) model.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		w := doRequest(h, "GET", "/v1/sessions/"+id+"/state", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("state status = %d, want 200", w.Code)
		}
		var s model.State
		if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
			t.Fatalf("decoding state: %v", err)
		}
		if pred(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state, last = %+v", s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func errorCodeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	return resp.Error.Code
}

// --- Session handler tests ---

func TestHandleCreateSession(t *testing.T) {
	r := NewRouter(testDeps(t))
	w := doRequest(r, "POST", "/v1/sessions", nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	var resp sessionResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.ID == "" {
		t.Fatal("session id is empty")
	}
	if resp.State.Kind != model.StateLoading {
		t.Errorf("state kind = %v, want loading", resp.State.Kind)
	}
	if got := w.Header().Get("Location"); got != "/v1/sessions/"+resp.ID {
		t.Errorf("Location = %q", got)
	}
}

func TestHandleCreateSession_shuttingDown(t *testing.T) {
	deps := testDeps(t)
	r := NewRouter(deps)
	deps.Sessions.CloseAll()

	w := doRequest(r, "POST", "/v1/sessions", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if code := errorCodeOf(t, w); code != model.ErrUnavailable {
		t.Errorf("code = %q, want %q", code, model.ErrUnavailable)
	}
}

func TestHandlePostEvent_drivesController(t *testing.T) {
	r := NewRouter(testDeps(t))
	id := createSession(t, r)

	w := postEvent(t, r, id, `{"type":"view_appeared"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	s := waitForState(t, r, id, func(s model.State) bool { return s.IsLoaded() })
	if len(s.Items) != 2 || len(s.Chips) != 3 {
		t.Errorf("items = %d chips = %d, want 2 and 3", len(s.Items), len(s.Chips))
	}

	postEvent(t, r, id, `{"type":"search","text":"Morty"}`)
	s = waitForState(t, r, id, func(s model.State) bool { return s.IsLoaded() && len(s.Items) == 1 })
	if s.Items[0].DisplayName() != "Morty Smith" {
		t.Errorf("item = %q, want Morty Smith", s.Items[0].DisplayName())
	}

	postEvent(t, r, id, `{"type":"category_tapped","name":"Gender"}`)
	s = waitForState(t, r, id, func(s model.State) bool { return len(s.Subcategories) > 0 })
	if len(s.Subcategories) != 4 {
		t.Errorf("subcategories = %d, want 4", len(s.Subcategories))
	}

	postEvent(t, r, id, `{"type":"subcategory_tapped","option":{"text":"Male","color":"#02afc5","category":"Gender"}}`)
	s = waitForState(t, r, id, func(s model.State) bool { return s.ActiveSubcategory != nil && len(s.Items) == 4 })
	if chip, _ := s.Chip("Gender"); !chip.Selected {
		t.Error("Gender chip not selected after subcategory tap")
	}
}

func TestHandlePostEvent_badRequests(t *testing.T) {
	r := NewRouter(testDeps(t))
	id := createSession(t, r)

	bodies := map[string]string{
		"invalid JSON":       `{not json`,
		"missing type":       `{}`,
		"unknown type":       `{"type":"swipe"}`,
		"subcategory no opt": `{"type":"subcategory_tapped"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			w := postEvent(t, r, id, body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if code := errorCodeOf(t, w); code != model.ErrBadRequest {
				t.Errorf("code = %q, want BAD_REQUEST", code)
			}
		})
	}
}

func TestEventRequest_toEvent(t *testing.T) {
	opt := model.FilterOption{Text: "Dead", Category: model.CategoryPtr(model.CategoryStatus)}
	tests := []struct {
		req  eventRequest
		want model.Event
	}{
		{eventRequest{Type: "view_appeared"}, model.ViewAppeared{}},
		{eventRequest{Type: "refresh"}, model.Refresh{}},
		{eventRequest{Type: "load_more"}, model.LoadMore{}},
		{eventRequest{Type: "search", Text: "rick"}, model.Search{Text: "rick"}},
		{eventRequest{Type: "category_tapped", Name: "Species"}, model.CategoryTapped{Name: "Species"}},
		{eventRequest{Type: "toggle_category_chip", Name: "Status"}, model.ToggleCategoryChip{Name: "Status"}},
	}
	for _, tc := range tests {
		t.Run(tc.req.Type, func(t *testing.T) {
			got, err := tc.req.toEvent()
			if err != nil {
				t.Fatalf("toEvent() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("toEvent() = %#v, want %#v", got, tc.want)
			}
			if got.EventName() != tc.req.Type {
				t.Errorf("EventName() = %q, want %q", got.EventName(), tc.req.Type)
			}
		})
	}

	got, err := eventRequest{Type: "subcategory_tapped", Option: &opt}.toEvent()
	if err != nil {
		t.Fatalf("toEvent() error = %v", err)
	}
	tapped, ok := got.(model.SubcategoryTapped)
	if !ok || tapped.Option.Text != "Dead" || *tapped.Option.Category != model.CategoryStatus {
		t.Errorf("toEvent() = %#v, want SubcategoryTapped(Dead)", got)
	}
}

func TestHandleDeleteSession(t *testing.T) {
	r := NewRouter(testDeps(t))
	id := createSession(t, r)

	w := doRequest(r, "DELETE", "/v1/sessions/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	w = doRequest(r, "GET", "/v1/sessions/"+id+"/state", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("state after delete status = %d, want 404", w.Code)
	}
}

// --- Stream tests ---

// sseReader yields the data payload of each "state" event and reports a
// "closed" event as ok=false.
type sseReader struct {
	scanner *bufio.Scanner
}

func (r *sseReader) next(t *testing.T) (model.State, bool) {
	t.Helper()
	var event, data string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			if event == "closed" {
				return model.State{}, false
			}
			var s model.State
			if err := json.Unmarshal([]byte(data), &s); err != nil {
				t.Fatalf("decoding stream data %q: %v", data, err)
			}
			return s, true
		}
	}
	return model.State{}, false
}

func TestHandleStream(t *testing.T) {
	deps := testDeps(t)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	id := createSession(t, srv.Config.Handler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/v1/sessions/"+id+"/stream", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	stream := &sseReader{scanner: bufio.NewScanner(resp.Body)}
	first, ok := stream.next(t)
	if !ok || first.Kind != model.StateLoading {
		t.Fatalf("first event = %v (ok=%v), want loading", first.Kind, ok)
	}

	s, _ := deps.Sessions.Get(id)
	if s.Streams() != 1 {
		t.Errorf("Streams() = %d, want 1 while streaming", s.Streams())
	}

	postEvent(t, srv.Config.Handler, id, `{"type":"view_appeared"}`)
	for {
		st, ok := stream.next(t)
		if !ok {
			t.Fatal("stream ended before a loaded state")
		}
		if st.IsLoaded() {
			if len(st.Items) != 2 {
				t.Errorf("items = %d, want 2", len(st.Items))
			}
			break
		}
	}

	doRequest(srv.Config.Handler, "DELETE", "/v1/sessions/"+id, nil)
	for {
		if _, ok := stream.next(t); !ok {
			break
		}
	}
}
