package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tphagent/marketing-engine/internal/progress"
)

func TestPrometheusSinkCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	batch := []progress.Event{
		{RequestID: "r1", TS: now, Stage: progress.StageJobDispatched},
		{RequestID: "r2", TS: now, Stage: progress.StageJobDispatched},
		{RequestID: "r1", TS: now, Stage: progress.StageFetchDone, Site: "example.com", StatusClass: progress.Status2xx, Dur: 30 * time.Millisecond},
		{RequestID: "r1", TS: now, Stage: progress.StageJobDone, Dur: time.Second},
		{RequestID: "r2", TS: now, Stage: progress.StageJobError, Note: "boom"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 2, testutil.ToFloat64(sink.jobsDispatched), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(sink.jobsFinished.WithLabelValues("success")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(sink.jobsFinished.WithLabelValues("error")), 0.001)
	require.InDelta(t, 0, testutil.ToFloat64(sink.jobsRunning), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(sink.fetchRequests.WithLabelValues("example.com", "2xx")), 0.001)
}

func TestPrometheusSinkRunningGaugeDeduplicates(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	// The same request dispatched twice must only bump the gauge once.
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RequestID: "r1", TS: now, Stage: progress.StageJobDispatched},
		{RequestID: "r1", TS: now, Stage: progress.StageJobDispatched},
	}))
	require.InDelta(t, 1, testutil.ToFloat64(sink.jobsRunning), 0.001)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RequestID: "r1", TS: now, Stage: progress.StageJobDone},
		{RequestID: "r1", TS: now, Stage: progress.StageJobDone},
	}))
	require.InDelta(t, 0, testutil.ToFloat64(sink.jobsRunning), 0.001)
}
