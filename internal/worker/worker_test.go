package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/metrics"
	"github.com/tphagent/marketing-engine/internal/progress"
	queuemem "github.com/tphagent/marketing-engine/internal/queue/memory"
	"github.com/tphagent/marketing-engine/internal/strategy"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type advanceCall struct {
	Progress int
	Message  string
}

type fakeRecorder struct {
	mu        sync.Mutex
	advances  []advanceCall
	completed []analysis.Result
	failures  []string
}

func (r *fakeRecorder) Advance(_ context.Context, _ string, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advances = append(r.advances, advanceCall{Progress: progress, Message: message})
}

func (r *fakeRecorder) Complete(_ context.Context, _ string, result analysis.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, result)
	return nil
}

func (r *fakeRecorder) Fail(_ context.Context, _ string, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, detail)
}

func (r *fakeRecorder) snapshot() ([]advanceCall, []analysis.Result, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]advanceCall(nil), r.advances...),
		append([]analysis.Result(nil), r.completed...),
		append([]string(nil), r.failures...)
}

type fakeAnalyzer struct {
	fn func(ctx context.Context, rawURL string) analysis.ExtractionResult
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, rawURL string) analysis.ExtractionResult {
	return a.fn(ctx, rawURL)
}

type fakeSynthesizer struct {
	fn func(primary analysis.ExtractionResult, secondary *analysis.ExtractionResult) (analysis.Strategy, error)
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, primary analysis.ExtractionResult, secondary *analysis.ExtractionResult) (analysis.Strategy, error) {
	return s.fn(primary, secondary)
}

type capturePublisher struct {
	mu      sync.Mutex
	results map[string]analysis.Result
	err     error
}

func (p *capturePublisher) Publish(_ context.Context, id string, result analysis.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.results == nil {
		p.results = make(map[string]analysis.Result)
	}
	p.results[id] = result
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	stages := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		stages = append(stages, evt.Stage)
	}
	return stages
}

func identityAnalyzer(name string) *fakeAnalyzer {
	return &fakeAnalyzer{fn: func(_ context.Context, rawURL string) analysis.ExtractionResult {
		return analysis.ExtractionResult{
			SourceURL: rawURL,
			Identity:  analysis.Identity{Name: name},
		}
	}}
}

func okSynthesizer() *fakeSynthesizer {
	return &fakeSynthesizer{fn: func(_ analysis.ExtractionResult, _ *analysis.ExtractionResult) (analysis.Strategy, error) {
		return analysis.Strategy{Audience: []string{"General travelers"}}, nil
	}}
}

func TestWorkerProcessesTask(t *testing.T) {
	metrics.Init()
	recorder := &fakeRecorder{}
	publisher := &capturePublisher{}
	emitter := &captureEmitter{}
	w := New(
		queuemem.NewQueue(1),
		recorder,
		identityAnalyzer("Grand Vista"),
		okSynthesizer(),
		publisher,
		nil,
		fixedClock{t: time.Now()},
		emitter,
		Config{},
		zap.NewNop(),
	)

	w.process(context.Background(), analysis.Task{
		RequestID:       "req-1",
		Target:          "https://example.com",
		SecondaryTarget: "https://instagram.com/grandvista",
	})

	advances, completed, failures := recorder.snapshot()
	require.Empty(t, failures)
	require.Len(t, completed, 1)

	got := make([]int, 0, len(advances))
	for _, call := range advances {
		got = append(got, call.Progress)
	}
	require.Equal(t, []int{10, 25, 40, 60, 80}, got)

	result := completed[0]
	require.Equal(t, "Grand Vista", result.Primary.Identity.Name)
	require.NotNil(t, result.Secondary)
	require.Equal(t, "https://instagram.com/grandvista", result.Secondary.SourceURL)
	require.Equal(t, []string{"General travelers"}, result.Strategy.Audience)

	require.Contains(t, publisher.results, "req-1")
	require.Equal(t, []progress.Stage{
		progress.StageJobDispatched,
		progress.StageFetchStart,
		progress.StageFetchDone,
		progress.StageSynthStart,
	}, emitter.stages())
}

func TestWorkerSkipsSecondaryMilestoneWithoutTarget(t *testing.T) {
	metrics.Init()
	recorder := &fakeRecorder{}
	w := New(
		queuemem.NewQueue(1),
		recorder,
		identityAnalyzer("Solo"),
		okSynthesizer(),
		nil, nil,
		fixedClock{t: time.Now()},
		nil,
		Config{},
		zap.NewNop(),
	)

	w.process(context.Background(), analysis.Task{RequestID: "req-2", Target: "https://example.com"})

	advances, completed, _ := recorder.snapshot()
	require.Len(t, completed, 1)
	require.Nil(t, completed[0].Secondary)
	for _, call := range advances {
		require.NotEqual(t, 60, call.Progress)
	}
}

func TestWorkerCompletesUnreachableTargetWithDefaultStrategy(t *testing.T) {
	metrics.Init()
	recorder := &fakeRecorder{}
	unreachable := &fakeAnalyzer{fn: func(_ context.Context, rawURL string) analysis.ExtractionResult {
		return analysis.ExtractionResult{
			SourceURL: rawURL,
			Warnings:  []analysis.Warning{{Facet: "fetch", Detail: "connection_failed"}},
		}
	}}
	w := New(
		queuemem.NewQueue(1),
		recorder,
		unreachable,
		strategy.NewRules(zap.NewNop()),
		nil, nil,
		fixedClock{t: time.Now()},
		nil,
		Config{},
		zap.NewNop(),
	)

	w.process(context.Background(), analysis.Task{RequestID: "req-6", Target: "https://offline.example"})

	_, completed, failures := recorder.snapshot()
	require.Empty(t, failures)
	require.Len(t, completed, 1)

	result := completed[0]
	require.Len(t, result.Primary.Warnings, 1)
	require.Equal(t, "Standard", result.Strategy.Budget.Tier)
	require.InDelta(t, 720.00, result.Strategy.Budget.Monthly, 0.001)
	require.InDelta(t, 24.00, result.Strategy.Budget.Daily, 0.001)
}

func TestWorkerCompletesWhenSecondaryFetchFails(t *testing.T) {
	metrics.Init()
	recorder := &fakeRecorder{}
	analyzer := &fakeAnalyzer{fn: func(_ context.Context, rawURL string) analysis.ExtractionResult {
		if rawURL == "https://instagram.com/ghost" {
			return analysis.ExtractionResult{
				SourceURL: rawURL,
				Warnings:  []analysis.Warning{{Facet: "fetch", Detail: "connection_failed"}},
			}
		}
		return analysis.ExtractionResult{
			SourceURL: rawURL,
			Identity:  analysis.Identity{Name: "Grand Vista"},
		}
	}}
	w := New(
		queuemem.NewQueue(1),
		recorder,
		analyzer,
		strategy.NewRules(zap.NewNop()),
		nil, nil,
		fixedClock{t: time.Now()},
		nil,
		Config{},
		zap.NewNop(),
	)

	w.process(context.Background(), analysis.Task{
		RequestID:       "req-7",
		Target:          "https://grandvista.example",
		SecondaryTarget: "https://instagram.com/ghost",
	})

	advances, completed, failures := recorder.snapshot()
	require.Empty(t, failures)
	require.Len(t, completed, 1)

	result := completed[0]
	require.Equal(t, "Grand Vista", result.Primary.Identity.Name)
	require.Empty(t, result.Primary.Warnings)
	require.NotNil(t, result.Secondary)
	require.Len(t, result.Secondary.Warnings, 1)
	require.Equal(t, "fetch", result.Secondary.Warnings[0].Facet)

	// The secondary milestone still reports even though its fetch degraded.
	var saw60 bool
	for _, call := range advances {
		if call.Progress == 60 {
			saw60 = true
		}
	}
	require.True(t, saw60)
}

func TestWorkerFailsOnSynthesisError(t *testing.T) {
	metrics.Init()
	recorder := &fakeRecorder{}
	synth := &fakeSynthesizer{fn: func(_ analysis.ExtractionResult, _ *analysis.ExtractionResult) (analysis.Strategy, error) {
		return analysis.Strategy{}, errors.New("boom")
	}}
	w := New(
		queuemem.NewQueue(1),
		recorder,
		identityAnalyzer("X"),
		synth,
		nil, nil,
		fixedClock{t: time.Now()},
		nil,
		Config{},
		zap.NewNop(),
	)

	w.process(context.Background(), analysis.Task{RequestID: "req-3", Target: "https://example.com"})

	_, completed, failures := recorder.snapshot()
	require.Empty(t, completed)
	require.Len(t, failures, 1)
	require.Contains(t, failures[0], "strategy synthesis")
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	metrics.Init()
	recorder := &fakeRecorder{}
	boom := &fakeAnalyzer{fn: func(_ context.Context, _ string) analysis.ExtractionResult {
		panic("extractor exploded")
	}}
	w := New(
		queuemem.NewQueue(1),
		recorder,
		boom,
		okSynthesizer(),
		nil, nil,
		fixedClock{t: time.Now()},
		nil,
		Config{},
		zap.NewNop(),
	)

	require.NotPanics(t, func() {
		w.process(context.Background(), analysis.Task{RequestID: "req-4", Target: "https://example.com"})
	})

	_, completed, failures := recorder.snapshot()
	require.Empty(t, completed)
	require.Len(t, failures, 1)
	require.Contains(t, failures[0], "internal error")
}

func TestWorkerPublishFailureDoesNotFailJob(t *testing.T) {
	metrics.Init()
	recorder := &fakeRecorder{}
	publisher := &capturePublisher{err: errors.New("broker down")}
	w := New(
		queuemem.NewQueue(1),
		recorder,
		identityAnalyzer("X"),
		okSynthesizer(),
		publisher,
		nil,
		fixedClock{t: time.Now()},
		nil,
		Config{},
		zap.NewNop(),
	)

	w.process(context.Background(), analysis.Task{RequestID: "req-5", Target: "https://example.com"})

	_, completed, failures := recorder.snapshot()
	require.Len(t, completed, 1)
	require.Empty(t, failures)
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	metrics.Init()
	const poolSize = 2

	queue := queuemem.NewQueue(8)
	recorder := &fakeRecorder{}

	var inFlight, peak atomic.Int64
	gate := make(chan struct{})
	analyzer := &fakeAnalyzer{fn: func(_ context.Context, rawURL string) analysis.ExtractionResult {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		<-gate
		inFlight.Add(-1)
		return analysis.ExtractionResult{SourceURL: rawURL}
	}}

	d := NewDispatcher(poolSize, func() *Worker {
		return New(queue, recorder, analyzer, okSynthesizer(), nil, nil,
			fixedClock{t: time.Now()}, nil, Config{}, zap.NewNop())
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for i := 0; i < 4; i++ {
		require.NoError(t, queue.TryEnqueue(analysis.Task{
			RequestID: string(rune('a' + i)),
			Target:    "https://example.com",
		}))
	}

	require.Eventually(t, func() bool {
		return inFlight.Load() == poolSize
	}, 2*time.Second, 10*time.Millisecond)
	close(gate)

	require.Eventually(t, func() bool {
		_, completed, _ := recorder.snapshot()
		return len(completed) == 4
	}, 2*time.Second, 10*time.Millisecond)
	require.LessOrEqual(t, peak.Load(), int64(poolSize))

	cancel()
	<-done
}
