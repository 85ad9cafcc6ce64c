// Package memory implements the in-process status store that backs the
// polling API.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

// Store keeps request lifecycle records in a map guarded by an RWMutex.
// Reads return copies so callers never observe a partially applied write.
type Store struct {
	mu       sync.RWMutex
	requests map[string]analysis.Request
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		requests: make(map[string]analysis.Request),
	}
}

// Create registers a new request record.
func (s *Store) Create(_ context.Context, req analysis.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return errors.New("request already exists")
	}
	s.requests[req.ID] = req
	return nil
}

// Get returns a snapshot of the request.
func (s *Store) Get(_ context.Context, id string) (analysis.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return analysis.Request{}, analysis.ErrNotFound
	}
	return req, nil
}

// Advance moves a non-terminal request forward. Progress is monotonic: a
// lower value keeps the current progress but still updates the message.
// Advancing a terminal request is a silent no-op so a late worker update
// cannot disturb a finished record.
func (s *Store) Advance(_ context.Context, id string, progress int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return analysis.ErrNotFound
	}
	if req.Status.IsTerminal() {
		return nil
	}
	req.Status = analysis.StatusProcessing
	if progress > req.Progress {
		req.Progress = progress
	}
	req.Message = message
	s.requests[id] = req
	return nil
}

// Complete transitions the request to completed exactly once.
func (s *Store) Complete(_ context.Context, id string, result analysis.Result, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return analysis.ErrNotFound
	}
	if req.Status.IsTerminal() {
		return analysis.ErrAlreadyTerminal
	}
	req.Status = analysis.StatusCompleted
	req.Progress = 100
	req.Message = "Analysis complete"
	req.Result = &result
	req.CompletedAt = &at
	s.requests[id] = req
	return nil
}

// Fail transitions the request to error exactly once.
func (s *Store) Fail(_ context.Context, id string, detail string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return analysis.ErrNotFound
	}
	if req.Status.IsTerminal() {
		return analysis.ErrAlreadyTerminal
	}
	req.Status = analysis.StatusError
	req.Message = "Analysis failed"
	req.ErrorDetail = detail
	req.CompletedAt = &at
	s.requests[id] = req
	return nil
}

// Len reports the number of stored requests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}
