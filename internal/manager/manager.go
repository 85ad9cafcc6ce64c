// Package manager owns the analysis request lifecycle: it admits
// submissions, hands tasks to the queue, and is the single writer of
// terminal status transitions on behalf of workers.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/metrics"
	"github.com/tphagent/marketing-engine/internal/progress"
)

// Manager coordinates the status store, the bounded queue, and the progress
// hub. It implements analysis.Recorder for workers.
type Manager struct {
	store   analysis.StatusStore
	queue   analysis.Queue
	ids     analysis.IDGenerator
	clock   analysis.Clock
	emitter progress.Emitter
	logger  *zap.Logger
}

// New builds a Manager. The emitter may be nil when progress streaming is
// not wired.
func New(
	store analysis.StatusStore,
	queue analysis.Queue,
	ids analysis.IDGenerator,
	clock analysis.Clock,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		queue:   queue,
		ids:     ids,
		clock:   clock,
		emitter: emitter,
		logger:  logger.Named("manager"),
	}
}

// Submit validates the targets, registers a queued record, and enqueues the
// task. It returns the created record so callers can answer immediately with
// the request id. When the queue is saturated no job survives: the record is
// failed and ErrQueueFull is returned.
func (m *Manager) Submit(ctx context.Context, target, secondaryTarget string) (analysis.Request, error) {
	canonical, err := analysis.ValidateTarget("website_url", target)
	if err != nil {
		return analysis.Request{}, err
	}
	canonicalSecondary := ""
	if secondaryTarget != "" {
		canonicalSecondary, err = analysis.ValidateTarget("social_url", secondaryTarget)
		if err != nil {
			return analysis.Request{}, err
		}
	}

	id, err := m.ids.NewID()
	if err != nil {
		return analysis.Request{}, fmt.Errorf("generate request id: %w", err)
	}

	now := m.clock.Now()
	req := analysis.Request{
		ID:              id,
		Target:          canonical,
		SecondaryTarget: canonicalSecondary,
		Status:          analysis.StatusQueued,
		Progress:        0,
		Message:         "Analysis queued",
		CreatedAt:       now,
	}
	if err := m.store.Create(ctx, req); err != nil {
		return analysis.Request{}, fmt.Errorf("create request record: %w", err)
	}

	task := analysis.Task{
		RequestID:       id,
		Target:          canonical,
		SecondaryTarget: canonicalSecondary,
		Submitted:       now,
	}
	if err := m.queue.TryEnqueue(task); err != nil {
		if errors.Is(err, analysis.ErrQueueFull) {
			// Reject fast and leave a terminal trace of the rejection.
			if failErr := m.store.Fail(ctx, id, "queue full", m.clock.Now()); failErr != nil {
				m.logger.Error("failed to mark rejected request", zap.String("request_id", id), zap.Error(failErr))
			}
			m.logger.Warn("submission rejected, queue full", zap.String("request_id", id))
			return analysis.Request{}, analysis.ErrQueueFull
		}
		return analysis.Request{}, fmt.Errorf("enqueue task: %w", err)
	}

	m.emit(progress.Event{
		RequestID: id,
		TS:        now,
		Stage:     progress.StageJobQueued,
		URL:       canonical,
	})
	m.logger.Info("analysis submitted",
		zap.String("request_id", id),
		zap.String("target", canonical),
		zap.Bool("has_secondary", canonicalSecondary != ""),
	)
	return req, nil
}

// GetStatus returns the current snapshot for a request.
func (m *Manager) GetStatus(ctx context.Context, id string) (analysis.Request, error) {
	return m.store.Get(ctx, id)
}

// Advance implements analysis.Recorder. Store errors are logged, not
// propagated: a progress update must never kill a running job.
func (m *Manager) Advance(ctx context.Context, id string, progressValue int, message string) {
	if err := m.store.Advance(ctx, id, progressValue, message); err != nil {
		m.logger.Error("advance failed", zap.String("request_id", id), zap.Error(err))
	}
}

// Complete implements analysis.Recorder and transitions the request to its
// completed terminal state exactly once.
func (m *Manager) Complete(ctx context.Context, id string, result analysis.Result) error {
	now := m.clock.Now()
	if err := m.store.Complete(ctx, id, result, now); err != nil {
		return err
	}
	elapsed := m.elapsed(ctx, id)
	metrics.ObserveAnalysis(string(analysis.StatusCompleted), elapsed)
	m.emit(progress.Event{
		RequestID: id,
		TS:        now,
		Stage:     progress.StageJobDone,
		Progress:  100,
		Dur:       elapsed,
	})
	m.logger.Info("analysis completed", zap.String("request_id", id), zap.Duration("elapsed", elapsed))
	return nil
}

// Fail implements analysis.Recorder. A second terminal write is ignored so
// the deferred failure guard in workers stays harmless after Complete.
func (m *Manager) Fail(ctx context.Context, id string, detail string) {
	now := m.clock.Now()
	if err := m.store.Fail(ctx, id, detail, now); err != nil {
		if !errors.Is(err, analysis.ErrAlreadyTerminal) {
			m.logger.Error("fail transition failed", zap.String("request_id", id), zap.Error(err))
		}
		return
	}
	elapsed := m.elapsed(ctx, id)
	metrics.ObserveAnalysis(string(analysis.StatusError), elapsed)
	m.emit(progress.Event{
		RequestID: id,
		TS:        now,
		Stage:     progress.StageJobError,
		Dur:       elapsed,
		Note:      detail,
	})
	m.logger.Warn("analysis failed", zap.String("request_id", id), zap.String("detail", detail))
}

func (m *Manager) elapsed(ctx context.Context, id string) time.Duration {
	req, err := m.store.Get(ctx, id)
	if err != nil {
		return 0
	}
	return req.Elapsed(m.clock.Now())
}

func (m *Manager) emit(evt progress.Event) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(evt)
}
