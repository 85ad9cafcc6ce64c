// Package memory contains an in-memory result publisher used in tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

// Publisher stores published results for inspection.
type Publisher struct {
	mu      sync.RWMutex
	results []PublishedResult
}

// PublishedResult captures one publish call.
type PublishedResult struct {
	RequestID string
	Result    analysis.Result
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the result.
func (p *Publisher) Publish(_ context.Context, requestID string, result analysis.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, PublishedResult{RequestID: requestID, Result: result})
	return nil
}

// Results returns a copy of the recorded publishes.
func (p *Publisher) Results() []PublishedResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedResult, len(p.results))
	copy(out, p.results)
	return out
}
