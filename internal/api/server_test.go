package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/metrics"
)

type stubService struct {
	submit func(target, secondary string) (analysis.Request, error)
	status func(id string) (analysis.Request, error)
}

func (s *stubService) Submit(_ context.Context, target, secondary string) (analysis.Request, error) {
	return s.submit(target, secondary)
}

func (s *stubService) GetStatus(_ context.Context, id string) (analysis.Request, error) {
	return s.status(id)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestServer(service Service, now time.Time) *Server {
	metrics.Init()
	return NewServer(service, fixedClock{t: now}, zap.NewNop())
}

func TestSubmitAnalysisAccepted(t *testing.T) {
	service := &stubService{
		submit: func(target, secondary string) (analysis.Request, error) {
			return analysis.Request{
				ID:              "req-123",
				Target:          target,
				SecondaryTarget: secondary,
				Status:          analysis.StatusQueued,
			}, nil
		},
	}
	srv := newTestServer(service, time.Now())

	body := strings.NewReader(`{"website_url":"https://example.com","social_url":"https://instagram.com/x"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp submitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "req-123", resp.RequestID)
	require.Equal(t, "queued", resp.Status)
}

func TestSubmitAnalysisRejectsBadJSON(t *testing.T) {
	srv := newTestServer(&stubService{}, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAnalysisValidationError(t *testing.T) {
	service := &stubService{
		submit: func(_, _ string) (analysis.Request, error) {
			return analysis.Request{}, &analysis.ValidationError{Field: "website_url", Reason: "missing host"}
		},
	}
	srv := newTestServer(service, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(`{"website_url":"nope"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "website_url", resp["field"])
	require.Contains(t, resp["error"], "missing host")
}

func TestSubmitAnalysisQueueFull(t *testing.T) {
	service := &stubService{
		submit: func(_, _ string) (analysis.Request, error) {
			return analysis.Request{}, analysis.ErrQueueFull
		},
	}
	srv := newTestServer(service, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(`{"website_url":"https://example.com"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetAnalysisStatusProcessing(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	service := &stubService{
		status: func(id string) (analysis.Request, error) {
			return analysis.Request{
				ID:        id,
				Status:    analysis.StatusProcessing,
				Progress:  40,
				Message:   "Extracting website",
				CreatedAt: now.Add(-10 * time.Second),
			}, nil
		},
	}
	srv := newTestServer(service, now)

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/req-123/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "req-123", resp.RequestID)
	require.Equal(t, "processing", resp.Status)
	require.Equal(t, 40, resp.Progress)
	require.Equal(t, "Extracting website", resp.Message)
	require.InDelta(t, 10.0, resp.ElapsedTime, 0.001)
	require.Nil(t, resp.Results)
}

func TestGetAnalysisStatusCompletedIncludesResults(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	created := now.Add(-45 * time.Second)
	completed := now.Add(-5 * time.Second)
	service := &stubService{
		status: func(id string) (analysis.Request, error) {
			return analysis.Request{
				ID:          id,
				Status:      analysis.StatusCompleted,
				Progress:    100,
				Message:     "Analysis complete",
				CreatedAt:   created,
				CompletedAt: &completed,
				Result: &analysis.Result{
					Strategy: analysis.Strategy{Audience: []string{"Luxury travelers"}},
				},
			}, nil
		},
	}
	srv := newTestServer(service, now)

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/req-9/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Results)
	require.Equal(t, []string{"Luxury travelers"}, resp.Results.Strategy.Audience)
	require.InDelta(t, 40.0, resp.ElapsedTime, 0.001)
}

func TestGetAnalysisStatusNotFound(t *testing.T) {
	service := &stubService{
		status: func(_ string) (analysis.Request, error) {
			return analysis.Request{}, analysis.ErrNotFound
		},
	}
	srv := newTestServer(service, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/missing/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(&stubService{}, time.Now())

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}
