package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/charlist/internal/config"
	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/internal/session"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Sessions  *session.Manager
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Readiness observability.ReadinessChecks

	// MetricsHandler serves /metrics. Defaults to the global Prometheus
	// registry.
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints skip request
// logging and the handler timeout.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = observability.Handler()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(InjectLogger(logger))
	r.Use(Recovery)
	r.Use(observability.TracingMiddleware)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(BuildRequestContext)
		r.Use(RequestLogging)
		r.Use(deps.Metrics.MetricsMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))

			r.Post("/v1/sessions", handleCreateSession(deps.Sessions))
			r.Get("/v1/sessions/{sessionId}/state", handleGetState(deps.Sessions))
			r.Post("/v1/sessions/{sessionId}/events", handlePostEvent(deps.Sessions))
			r.Delete("/v1/sessions/{sessionId}", handleDeleteSession(deps.Sessions))
		})

		// Event streams are long-lived and bounded by the client instead.
		r.Get("/v1/sessions/{sessionId}/stream", handleStream(deps.Sessions, deps.Config.Sessions.StreamKeepAlive))
	})

	return r
}
