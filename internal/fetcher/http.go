// Package fetcher implements model.PageFetcher against the characters API,
// together with caching, instrumentation and stub variants.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/charlist/internal/config"
	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/model"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 10 << 20

// HTTPFetcher fetches character pages over HTTP with retry and circuit
// breaker protection. It is safe for concurrent use.
type HTTPFetcher struct {
	baseURL *url.URL
	client  *http.Client
	breaker *CircuitBreaker
	retry   config.RetryConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithMetrics records backend metrics on m.
func WithMetrics(m *observability.Metrics) HTTPOption {
	return func(f *HTTPFetcher) { f.metrics = m }
}

// WithLogger sets the logger used for retries and breaker transitions.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewHTTPFetcher creates a fetcher for the API rooted at cfg.BaseURL.
func NewHTTPFetcher(cfg config.APIConfig, opts ...HTTPOption) (*HTTPFetcher, error) {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("fetcher: base url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	f := &HTTPFetcher{
		baseURL: u,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retry:  cfg.Retry,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.breaker = NewCircuitBreaker(cfg.CircuitBreaker, f.onBreakerChange)
	f.metrics.SetBackendCircuitBreakerState(BreakerClosed.GaugeValue())
	return f, nil
}

// Breaker returns the fetcher's circuit breaker, for readiness checks.
func (f *HTTPFetcher) Breaker() *CircuitBreaker {
	return f.breaker
}

// FetchPage retrieves one page. Failures are returned as *model.FetchError.
func (f *HTTPFetcher) FetchPage(ctx context.Context, page int) (model.Page, error) {
	if page < 1 {
		return model.Page{}, model.NewInvalidResponseError(fmt.Errorf("page %d out of range", page))
	}

	reqURL := f.pageURL(page)
	body, err := f.executeWithRetry(ctx, reqURL)
	if err != nil {
		return model.Page{}, err
	}

	p, err := Decode(body)
	if err != nil {
		return model.Page{}, model.NewInvalidResponseError(err)
	}
	return p, nil
}

func (f *HTTPFetcher) pageURL(page int) string {
	ref := &url.URL{
		Path:     "character",
		RawQuery: url.Values{"page": []string{strconv.Itoa(page)}}.Encode(),
	}
	return f.baseURL.ResolveReference(ref).String()
}

// executeWithRetry wraps executeOnce with retry logic and exponential backoff.
// GET is idempotent, so transport errors and retryable statuses are retried.
func (f *HTTPFetcher) executeWithRetry(ctx context.Context, reqURL string) ([]byte, error) {
	maxAttempts := f.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(f.retry, attempt)
			select {
			case <-ctx.Done():
				return nil, model.NewInvalidResponseError(ctx.Err())
			case <-time.After(delay):
			}
			f.metrics.RecordBackendRetry()
		}

		body, err := f.executeOnce(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(ctx, err) {
			return nil, err
		}
		observability.RecordRetry(ctx, attempt+1, err)
		f.logger.Debug("fetcher: retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max", maxAttempts),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// executeOnce performs a single request with circuit breaker protection.
func (f *HTTPFetcher) executeOnce(ctx context.Context, reqURL string) ([]byte, error) {
	if err := f.breaker.Allow(); err != nil {
		return nil, &model.FetchError{
			Code:    http.StatusServiceUnavailable,
			Message: "service temporarily unavailable",
			Err:     err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, model.NewInvalidResponseError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	observability.InjectTraceHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.RecordBackendRequest(0, time.Since(start))
		f.breaker.RecordFailure()
		return nil, model.NewInvalidResponseError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	f.metrics.RecordBackendRequest(resp.StatusCode, time.Since(start))
	if err != nil {
		f.breaker.RecordFailure()
		return nil, model.NewInvalidResponseError(fmt.Errorf("read response: %w", err))
	}

	// 4xx are not infrastructure failures and leave the breaker alone.
	switch {
	case isServerError(resp.StatusCode):
		f.breaker.RecordFailure()
	case !isClientError(resp.StatusCode):
		f.breaker.RecordSuccess()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewFetchError(resp.StatusCode, model.StatusMessage(resp.StatusCode))
	}
	return body, nil
}

func (f *HTTPFetcher) onBreakerChange(state BreakerState) {
	f.metrics.SetBackendCircuitBreakerState(state.GaugeValue())
	if state == BreakerOpen {
		f.logger.Warn("fetcher: circuit breaker opened")
		return
	}
	f.logger.Info("fetcher: circuit breaker state changed", zap.Stringer("state", state))
}

// --- classification helpers ---

func isServerError(code int) bool {
	return code >= 500
}

func isClientError(code int) bool {
	return code >= 400 && code < 500
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	}
	return false
}

// isRetryable reports whether a failed attempt may be repeated. Breaker
// rejections and caller cancellation are final.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	fe, ok := model.AsFetchError(err)
	if !ok {
		return false
	}
	if fe.Code == model.CodeInvalidResponse {
		return true
	}
	return isRetryableStatus(fe.Code)
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.BackoffMax {
			delay = cfg.BackoffMax
			break
		}
	}
	return delay
}
