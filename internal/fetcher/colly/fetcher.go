// Package collyfetcher implements analysis.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// RateLimiter throttles outbound requests per host.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements analysis.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	limiter       RateLimiter
	retry         *ExponentialRetryPolicy
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil limiter disables per-host throttling.
func New(cfg Config, limiter RateLimiter) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		retry:         NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes an HTTP GET using Colly, retrying transient failures with
// jittered exponential backoff. Client errors (4xx) are never retried.
func (f *Fetcher) Fetch(ctx context.Context, request analysis.FetchRequest) (analysis.FetchResponse, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, request.URL); err != nil {
			return analysis.FetchResponse{}, fmt.Errorf("fetch throttle: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		response, err := f.fetchOnce(ctx, request)
		if err == nil {
			metrics.ObserveFetch(request.URL, statusClass(response.StatusCode), len(response.Body))
			return response, nil
		}
		lastErr = err
		// The caller's own context ending is terminal regardless of how the
		// failure was classified.
		if ctx.Err() != nil || !f.retry.ShouldRetry(err, attempt+1) {
			break
		}
		select {
		case <-ctx.Done():
			return analysis.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
		case <-time.After(f.retry.Backoff(attempt)):
		}
	}
	metrics.ObserveFetch(request.URL, failureClass(lastErr), 0)
	return analysis.FetchResponse{}, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, request analysis.FetchRequest) (analysis.FetchResponse, error) {
	var (
		result   analysis.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return analysis.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return analysis.FetchResponse{}, fetchErr
		}
		if err != nil {
			return analysis.FetchResponse{}, classify(request.URL, 0, err)
		}
		return result, nil
	}
}

func (f *Fetcher) buildCollector(
	request analysis.FetchRequest,
	start time.Time,
	result *analysis.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request analysis.FetchRequest,
	start time.Time,
	result *analysis.FetchResponse,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = analysis.FetchResponse{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Headers:     r.Headers.Clone(),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		*fetchErr = classify(request.URL, statusCode, err)
	})
}

func (f *Fetcher) copyHeaders(request analysis.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// classify maps a transport-level failure onto a FetchError so callers can
// distinguish timeouts, connection faults, and HTTP status failures.
func classify(rawURL string, statusCode int, err error) *analysis.FetchError {
	if statusCode >= 400 {
		return &analysis.FetchError{
			Kind:       analysis.FetchHTTPStatus,
			URL:        rawURL,
			StatusCode: statusCode,
			Err:        err,
		}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &analysis.FetchError{Kind: analysis.FetchTimeout, URL: rawURL, Err: err}
	}
	return &analysis.FetchError{Kind: analysis.FetchConnectionFailed, URL: rawURL, Err: err}
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func failureClass(err error) string {
	var fe *analysis.FetchError
	if errors.As(err, &fe) {
		if fe.Kind == analysis.FetchHTTPStatus {
			return statusClass(fe.StatusCode)
		}
		return string(fe.Kind)
	}
	return "error"
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       90 * time.Second,
	}
}
