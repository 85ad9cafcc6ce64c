package analysis

import (
	"context"
	"time"
)

// StatusStore keeps the per-request lifecycle records. Reads return
// consistent snapshots and are safe concurrently with the owning worker's
// writes.
type StatusStore interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	// Advance updates progress and message for a non-terminal request.
	// Progress never decreases; a lower value is clamped to the current one.
	Advance(ctx context.Context, id string, progress int, message string) error
	// Complete and Fail transition to a terminal state exactly once and
	// return ErrAlreadyTerminal on any second terminal write.
	Complete(ctx context.Context, id string, result Result, at time.Time) error
	Fail(ctx context.Context, id string, detail string, at time.Time) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Analyzer derives an ExtractionResult from one target URL. It never returns
// an error; failures degrade to warnings on the result.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string) ExtractionResult
}

// Synthesizer maps one or two extraction results into a Strategy. Rule-based
// and LLM-backed implementations are interchangeable behind this signature.
type Synthesizer interface {
	Synthesize(ctx context.Context, primary ExtractionResult, secondary *ExtractionResult) (Strategy, error)
}

// Cache memoizes extraction results keyed by normalized URL.
type Cache interface {
	Get(key string) (ExtractionResult, bool)
	Put(key string, value ExtractionResult)
}

// Queue provides enqueue/dequeue semantics for analysis tasks.
type Queue interface {
	// TryEnqueue rejects with ErrQueueFull instead of blocking so Submit
	// stays non-blocking under saturation.
	TryEnqueue(task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Recorder is the narrow write surface a worker uses against the request it
// owns. The manager implements it.
type Recorder interface {
	Advance(ctx context.Context, id string, progress int, message string)
	Complete(ctx context.Context, id string, result Result) error
	Fail(ctx context.Context, id string, detail string)
}

// Publisher hands completed (id, result) tuples to external consumers such
// as the email sender or the campaign client. The core does not depend on a
// consumer's success.
type Publisher interface {
	Publish(ctx context.Context, id string, result Result) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
