package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/metrics"
	"github.com/tphagent/marketing-engine/internal/progress"
	queuemem "github.com/tphagent/marketing-engine/internal/queue/memory"
	statusmem "github.com/tphagent/marketing-engine/internal/status/memory"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	n int
}

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return "req-" + string(rune('0'+s.n)), nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) Events() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]progress.Event(nil), c.events...)
}

func newTestManager(t *testing.T, queueDepth int) (*Manager, *statusmem.Store, *queuemem.Queue, *captureEmitter) {
	t.Helper()
	metrics.Init()
	store := statusmem.NewStore()
	queue := queuemem.NewQueue(queueDepth)
	emitter := &captureEmitter{}
	m := New(store, queue, &seqIDs{}, &fixedClock{now: time.Unix(5000, 0).UTC()}, emitter, zap.NewNop())
	return m, store, queue, emitter
}

func TestSubmitCreatesQueuedRecord(t *testing.T) {
	m, store, queue, emitter := newTestManager(t, 4)
	ctx := context.Background()

	req, err := m.Submit(ctx, "example.com", "https://instagram.com/example")
	require.NoError(t, err)
	require.NotEmpty(t, req.ID)
	require.Equal(t, "https://example.com", req.Target)
	require.Equal(t, "https://instagram.com/example", req.SecondaryTarget)
	require.Equal(t, analysis.StatusQueued, req.Status)
	require.Equal(t, 0, req.Progress)

	stored, err := store.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, analysis.StatusQueued, stored.Status)

	task, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, req.ID, task.RequestID)

	events := emitter.Events()
	require.Len(t, events, 1)
	require.Equal(t, progress.StageJobQueued, events[0].Stage)
}

func TestSubmitRejectsInvalidTarget(t *testing.T) {
	m, store, _, _ := newTestManager(t, 4)

	_, err := m.Submit(context.Background(), "", "")
	var vErr *analysis.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "website_url", vErr.Field)
	require.Equal(t, 0, store.Len(), "no record for rejected submission")
}

func TestSubmitRejectsInvalidSecondary(t *testing.T) {
	m, store, _, _ := newTestManager(t, 4)

	_, err := m.Submit(context.Background(), "https://example.com", "ftp://nope")
	var vErr *analysis.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "social_url", vErr.Field)
	require.Equal(t, 0, store.Len())
}

func TestSubmitQueueFull(t *testing.T) {
	m, store, _, _ := newTestManager(t, 1)
	ctx := context.Background()

	_, err := m.Submit(ctx, "https://one.example.com", "")
	require.NoError(t, err)

	rejected, err := m.Submit(ctx, "https://two.example.com", "")
	require.ErrorIs(t, err, analysis.ErrQueueFull)
	require.Empty(t, rejected.ID)

	// The rejected submission leaves a terminal error trace, not a live job.
	require.Equal(t, 2, store.Len())
}

func TestRecorderLifecycle(t *testing.T) {
	m, store, _, emitter := newTestManager(t, 4)
	ctx := context.Background()

	req, err := m.Submit(ctx, "https://example.com", "")
	require.NoError(t, err)

	m.Advance(ctx, req.ID, 40, "Extracting website")
	got, _ := store.Get(ctx, req.ID)
	require.Equal(t, 40, got.Progress)
	require.Equal(t, analysis.StatusProcessing, got.Status)

	result := analysis.Result{Strategy: analysis.Strategy{Audience: []string{"General travelers"}}}
	require.NoError(t, m.Complete(ctx, req.ID, result))

	got, _ = store.Get(ctx, req.ID)
	require.Equal(t, analysis.StatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Result)

	// Second terminal write surfaces ErrAlreadyTerminal to the worker.
	require.ErrorIs(t, m.Complete(ctx, req.ID, result), analysis.ErrAlreadyTerminal)
	// A late Fail after Complete is swallowed.
	m.Fail(ctx, req.ID, "late failure")
	got, _ = store.Get(ctx, req.ID)
	require.Equal(t, analysis.StatusCompleted, got.Status)

	var stages []progress.Stage
	for _, evt := range emitter.Events() {
		stages = append(stages, evt.Stage)
	}
	require.Equal(t, []progress.Stage{progress.StageJobQueued, progress.StageJobDone}, stages)
}

func TestFailEmitsErrorEvent(t *testing.T) {
	m, store, _, emitter := newTestManager(t, 4)
	ctx := context.Background()

	req, err := m.Submit(ctx, "https://example.com", "")
	require.NoError(t, err)

	m.Fail(ctx, req.ID, "synthesis exploded")
	got, _ := store.Get(ctx, req.ID)
	require.Equal(t, analysis.StatusError, got.Status)
	require.Equal(t, "synthesis exploded", got.ErrorDetail)

	events := emitter.Events()
	require.Equal(t, progress.StageJobError, events[len(events)-1].Stage)
	require.Equal(t, "synthesis exploded", events[len(events)-1].Note)
}

func TestGetStatusUnknownID(t *testing.T) {
	m, _, _, _ := newTestManager(t, 4)

	_, err := m.GetStatus(context.Background(), "nope")
	require.True(t, errors.Is(err, analysis.ErrNotFound))
}
