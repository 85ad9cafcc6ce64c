package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/archive"
	"github.com/tphagent/marketing-engine/internal/progress"
)

// ArchiveSink persists run lifecycle transitions via an archive.Repository.
// Only lifecycle stages write rows; fetch milestones are observability-only
// and stay out of the database.
type ArchiveSink struct {
	repo   archive.Repository
	logger *zap.Logger
}

// NewArchiveSink constructs an ArchiveSink for the provided repository.
func NewArchiveSink(repo archive.Repository, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{repo: repo, logger: logger}
}

// Consume forwards lifecycle events to the repository. It respects ctx
// deadlines and returns repository errors verbatim so the hub can log them.
func (s *ArchiveSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobDispatched:
			if err := s.repo.UpsertRunStart(ctx, evt.RequestID, evt.URL, evt.TS); err != nil {
				return fmt.Errorf("upsert run start: %w", err)
			}
		case progress.StageJobDone:
			if err := s.repo.CompleteRun(ctx, evt.RequestID, evt.TS, archive.RunSuccess, nil); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		case progress.StageJobError:
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.repo.CompleteRun(ctx, evt.RequestID, evt.TS, archive.RunError, note); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
