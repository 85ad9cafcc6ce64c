// Package worker implements the analysis pipeline execution loop.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/archive"
	"github.com/tphagent/marketing-engine/internal/metrics"
	"github.com/tphagent/marketing-engine/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	// JobBudget bounds the wall-clock time of one analysis run.
	JobBudget time.Duration
}

const defaultJobBudget = 90 * time.Second

// Worker consumes queued tasks and executes the analysis pipeline: fetch
// and extract the targets, synthesize a strategy, and record the terminal
// state exactly once.
type Worker struct {
	queue       analysis.Queue
	recorder    analysis.Recorder
	analyzer    analysis.Analyzer
	synthesizer analysis.Synthesizer
	publisher   analysis.Publisher
	archiver    archive.Repository
	clock       analysis.Clock
	emitter     progress.Emitter
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Worker. Publisher, archiver, and emitter are optional.
func New(
	queue analysis.Queue,
	recorder analysis.Recorder,
	analyzer analysis.Analyzer,
	synthesizer analysis.Synthesizer,
	publisher analysis.Publisher,
	archiver archive.Repository,
	clock analysis.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.JobBudget <= 0 {
		cfg.JobBudget = defaultJobBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:       queue,
		recorder:    recorder,
		analyzer:    analyzer,
		synthesizer: synthesizer,
		publisher:   publisher,
		archiver:    archiver,
		clock:       clock,
		emitter:     emitter,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("request_id", task.RequestID))
		w.process(ctx, task)
	}
}

// process runs a single analysis to a terminal state. The deferred guard
// guarantees exactly one terminal transition even on panic or budget
// exhaustion; the recorder swallows a redundant Fail after Complete.
func (w *Worker) process(ctx context.Context, task analysis.Task) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobBudget)
	defer cancel()

	completed := false
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panic",
				zap.String("request_id", task.RequestID),
				zap.Any("panic", r),
			)
			w.recorder.Fail(ctx, task.RequestID, fmt.Sprintf("internal error: %v", r))
			return
		}
		if !completed {
			detail := "analysis aborted"
			if err := jobCtx.Err(); err != nil {
				detail = fmt.Sprintf("job budget exceeded: %v", err)
			}
			w.recorder.Fail(ctx, task.RequestID, detail)
		}
	}()

	started := w.clock.Now()
	w.recorder.Advance(jobCtx, task.RequestID, 10, "Analysis dispatched")
	w.emit(progress.Event{
		RequestID: task.RequestID,
		TS:        started,
		Stage:     progress.StageJobDispatched,
		URL:       task.Target,
		Progress:  10,
	})

	w.recorder.Advance(jobCtx, task.RequestID, 25, "Fetching website")
	w.emit(progress.Event{
		RequestID: task.RequestID,
		TS:        w.clock.Now(),
		Stage:     progress.StageFetchStart,
		Site:      metrics.SanitizeSite(task.Target),
		URL:       task.Target,
		Progress:  25,
	})

	primary, secondary := w.analyzeTargets(jobCtx, task)
	if jobCtx.Err() != nil {
		return
	}

	w.recorder.Advance(jobCtx, task.RequestID, 80, "Synthesizing strategy")
	w.emit(progress.Event{
		RequestID: task.RequestID,
		TS:        w.clock.Now(),
		Stage:     progress.StageSynthStart,
		Progress:  80,
	})

	strategy, err := w.synthesizer.Synthesize(jobCtx, primary, secondary)
	if err != nil {
		w.recorder.Fail(ctx, task.RequestID, fmt.Sprintf("strategy synthesis: %v", err))
		completed = true
		return
	}

	result := analysis.Result{
		Strategy:  strategy,
		Primary:   primary,
		Secondary: secondary,
	}
	if err := w.recorder.Complete(jobCtx, task.RequestID, result); err != nil {
		w.logger.Error("complete transition failed",
			zap.String("request_id", task.RequestID),
			zap.Error(err),
		)
		completed = true
		return
	}
	completed = true

	w.handoff(ctx, task.RequestID, result)
}

// analyzeTargets runs the primary and optional secondary analyses
// concurrently, reporting milestones as each finishes. The primary always
// advances to 40 before the secondary advances to 60, regardless of which
// goroutine returns first; the store clamps any out-of-order progress.
func (w *Worker) analyzeTargets(ctx context.Context, task analysis.Task) (analysis.ExtractionResult, *analysis.ExtractionResult) {
	var (
		wg        sync.WaitGroup
		primary   analysis.ExtractionResult
		secondary *analysis.ExtractionResult
	)

	fetchStart := w.clock.Now()
	wg.Add(1)
	go func() {
		defer wg.Done()
		primary = w.analyzer.Analyze(ctx, task.Target)
	}()

	secondaryDone := make(chan struct{})
	if task.SecondaryTarget != "" {
		go func() {
			defer close(secondaryDone)
			result := w.analyzer.Analyze(ctx, task.SecondaryTarget)
			secondary = &result
		}()
	} else {
		close(secondaryDone)
	}

	wg.Wait()
	w.recorder.Advance(ctx, task.RequestID, 40, "Website extraction complete")
	w.emit(progress.Event{
		RequestID:   task.RequestID,
		TS:          w.clock.Now(),
		Stage:       progress.StageFetchDone,
		Site:        metrics.SanitizeSite(task.Target),
		URL:         task.Target,
		StatusClass: fetchClass(primary),
		Progress:    40,
		Dur:         w.clock.Now().Sub(fetchStart),
	})

	<-secondaryDone
	if task.SecondaryTarget != "" {
		w.recorder.Advance(ctx, task.RequestID, 60, "Social profile analyzed")
	}
	return primary, secondary
}

// handoff delivers the completed result to the optional publisher and
// archive. Neither can fail the job; it is already terminal.
func (w *Worker) handoff(ctx context.Context, requestID string, result analysis.Result) {
	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, requestID, result); err != nil {
			w.logger.Warn("result publish failed",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
	}
	if w.archiver != nil {
		if err := w.archiver.SaveResult(ctx, requestID, result, w.clock.Now()); err != nil {
			w.logger.Warn("result archive failed",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
	}
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}

// fetchClass derives a coarse status class from the extraction outcome; the
// analyzer reports fetch failures only as warnings.
func fetchClass(result analysis.ExtractionResult) progress.StatusClass {
	for _, warning := range result.Warnings {
		if warning.Facet == "fetch" {
			return progress.StatusOther
		}
	}
	return progress.Status2xx
}
