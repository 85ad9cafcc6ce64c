// Package api exposes the HTTP interface for the analysis service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/metrics"
)

// Service is the submission and status surface the server fronts.
type Service interface {
	Submit(ctx context.Context, target, secondaryTarget string) (analysis.Request, error)
	GetStatus(ctx context.Context, id string) (analysis.Request, error)
}

// Server wires HTTP handlers to the analysis manager.
type Server struct {
	router  chi.Router
	service Service
	clock   analysis.Clock
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service Service, clock analysis.Clock, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		clock:   clock,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.submitAnalysis)
			r.Get("/{request_id}/status", s.getAnalysisStatus)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	WebsiteURL string `json:"website_url"`
	SocialURL  string `json:"social_url,omitempty"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type statusResponse struct {
	RequestID   string           `json:"request_id"`
	Status      string           `json:"status"`
	Message     string           `json:"message"`
	Progress    int              `json:"progress"`
	ElapsedTime float64          `json:"elapsed_time"`
	Results     *analysis.Result `json:"results,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	record, err := s.service.Submit(r.Context(), req.WebsiteURL, req.SocialURL)
	if err != nil {
		var verr *analysis.ValidationError
		switch {
		case errors.As(err, &verr):
			s.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
				"field": verr.Field,
			})
		case errors.Is(err, analysis.ErrQueueFull):
			s.writeError(w, http.StatusServiceUnavailable, "analysis queue is full, retry later")
		default:
			s.logger.Error("submit failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, submitResponse{
		RequestID: record.ID,
		Status:    string(record.Status),
	})
}

func (s *Server) getAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "request_id")
	record, err := s.service.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		s.logger.Error("status lookup failed", zap.String("request_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := statusResponse{
		RequestID:   record.ID,
		Status:      string(record.Status),
		Message:     record.Message,
		Progress:    record.Progress,
		ElapsedTime: record.Elapsed(s.clock.Now()).Seconds(),
		Error:       record.ErrorDetail,
	}
	if record.Status == analysis.StatusCompleted {
		resp.Results = record.Result
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
