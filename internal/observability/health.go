package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Build information, set by main.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthResponse is the liveness body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ReadinessResponse is the readiness body, one entry per check.
type ReadinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker reports whether a dependency can serve traffic.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

var errNotAccepting = errors.New("session manager not accepting sessions")

// ReadinessChecks lists what /ready verifies.
type ReadinessChecks struct {
	// AcceptingSessions is required; a nil func reports not ready.
	AcceptingSessions func() bool

	// Upstream guards the characters API, typically its circuit breaker.
	// Skipped when nil.
	Upstream HealthChecker
}

func (c ReadinessChecks) checkers() map[string]HealthChecker {
	out := map[string]HealthChecker{
		"sessions": CheckFunc(func(context.Context) error {
			if c.AcceptingSessions == nil || !c.AcceptingSessions() {
				return errNotAccepting
			}
			return nil
		}),
	}
	if c.Upstream != nil {
		out["characters_api"] = c.Upstream
	}
	return out
}

const checkTimeout = 2 * time.Second

// HandleHealth serves liveness with build information.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			Commit:  Commit,
		})
	}
}

// HandleReady runs every check concurrently and answers 503 if any fails.
func HandleReady(checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checkers := checks.checkers()
		results := make(map[string]CheckResult, len(checkers))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for name, checker := range checkers {
			wg.Go(func() {
				res := runCheck(r.Context(), checker)
				mu.Lock()
				results[name] = res
				mu.Unlock()
			})
		}
		wg.Wait()

		resp := ReadinessResponse{Status: "ready", Checks: results}
		status := http.StatusOK
		for _, res := range results {
			if res.Status != "ok" {
				resp.Status = "not_ready"
				status = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, status, resp)
	}
}

// runCheck executes one check under checkTimeout.
func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	res := CheckResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
