// Package pubsub publishes completed analysis results to Google Cloud
// Pub/Sub for downstream consumers.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	publisher *pubsub.Publisher
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Publish marshals the result to JSON and publishes it, tagging the message
// with the originating request id so consumers can correlate.
func (p *Publisher) Publish(ctx context.Context, requestID string, result analysis.Result) error {
	if p.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"request_id": requestID},
	}
	if _, err := p.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}
