// Package archive declares interfaces for durably recording analysis runs
// and their synthesized strategies.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("archive record not found")

// RunStatus mirrors the analysis_runs status column.
type RunStatus string

// Run statuses persisted in analysis_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models the analysis_runs table.
type Run struct {
	// RequestID is the logical analysis identifier shared with workers.
	RequestID string
	// Target is the primary URL analyzed by the run.
	Target string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// Repository persists run lifecycle rows and completed results.
type Repository interface {
	// UpsertRunStart inserts (or idempotently updates) the started_at timestamp.
	UpsertRunStart(ctx context.Context, requestID, target string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, requestID string, finishedAt time.Time, status RunStatus, errMsg *string) error
	// SaveResult stores the synthesized result for a completed run.
	SaveResult(ctx context.Context, requestID string, result analysis.Result, at time.Time) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, requestID string) (Run, error)
}
