package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/internal/session"
	"github.com/pitabwire/charlist/model"
)

const (
	maxEventBodyBytes = 64 << 10
	streamBuffer      = 16
)

// sessionResponse is returned when a session is created.
type sessionResponse struct {
	ID    string      `json:"id"`
	State model.State `json:"state"`
}

// eventRequest is the wire form of a renderer event. Only the field that
// belongs to Type is read.
type eventRequest struct {
	Type   string              `json:"type"`
	Text   string              `json:"text,omitempty"`
	Name   string              `json:"name,omitempty"`
	Option *model.FilterOption `json:"option,omitempty"`
}

// toEvent resolves the request to a controller event.
func (e eventRequest) toEvent() (model.Event, error) {
	switch e.Type {
	case "view_appeared":
		return model.ViewAppeared{}, nil
	case "refresh":
		return model.Refresh{}, nil
	case "load_more":
		return model.LoadMore{}, nil
	case "search":
		return model.Search{Text: e.Text}, nil
	case "category_tapped":
		return model.CategoryTapped{Name: e.Name}, nil
	case "toggle_category_chip":
		return model.ToggleCategoryChip{Name: e.Name}, nil
	case "subcategory_tapped":
		if e.Option == nil {
			return nil, model.NewBadRequestError("subcategory_tapped requires an option")
		}
		return model.SubcategoryTapped{Option: *e.Option}, nil
	case "":
		return nil, model.NewBadRequestError("event type is required")
	default:
		return nil, model.NewBadRequestError(fmt.Sprintf("unknown event type %q", e.Type))
	}
}

func handleCreateSession(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Create()
		if err != nil {
			WriteError(w, err)
			return
		}
		w.Header().Set("Location", "/v1/sessions/"+s.ID)
		WriteJSON(w, http.StatusCreated, sessionResponse{ID: s.ID, State: s.Controller.State()})
	}
}

func handleGetState(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Get(chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, s.Controller.State())
	}
}

func handlePostEvent(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Get(chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}

		var req eventRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&req); err != nil {
			WriteBadRequest(w, "invalid JSON body")
			return
		}
		ev, err := req.toEvent()
		if err != nil {
			WriteError(w, err)
			return
		}

		s.Controller.Submit(ev)
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "type": ev.EventName()})
	}
}

func handleDeleteSession(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessions.Close(chi.URLParam(r, "sessionId")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleStream writes every published snapshot as a server-sent event until
// the client disconnects or the session ends.
func handleStream(sessions *session.Manager, keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Get(chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, model.NewInternalError())
			return
		}

		detach := s.Attach()
		defer detach()
		states, unsubscribe := s.Controller.Subscribe(streamBuffer)
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		var tick <-chan time.Time
		if keepAlive > 0 {
			ticker := time.NewTicker(keepAlive)
			defer ticker.Stop()
			tick = ticker.C
		}

		logger := observability.RequestLogger(r.Context(), zap.L())
		for {
			select {
			case <-r.Context().Done():
				return
			case <-tick:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case state, ok := <-states:
				if !ok {
					fmt.Fprint(w, "event: closed\ndata: {}\n\n")
					flusher.Flush()
					return
				}
				if err := writeStateEvent(w, state); err != nil {
					logger.Debug("stream write failed", zap.Error(err))
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeStateEvent(w http.ResponseWriter, state model.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("transport: encoding state: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", state.Version, data)
	return err
}
