package collyfetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

func TestShouldRetry(t *testing.T) {
	p := NewExponentialRetryPolicy(3, 0, 0)

	testCases := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"budget exhausted", errors.New("boom"), 3, false},
		{"canceled", context.Canceled, 1, false},
		{"deadline", context.DeadlineExceeded, 1, false},
		{"transient", errors.New("boom"), 1, true},
		{
			"http 404",
			&analysis.FetchError{Kind: analysis.FetchHTTPStatus, StatusCode: 404},
			1,
			false,
		},
		{
			"http 500",
			&analysis.FetchError{Kind: analysis.FetchHTTPStatus, StatusCode: 500},
			1,
			true,
		},
		{
			"timeout kind",
			&analysis.FetchError{Kind: analysis.FetchTimeout},
			1,
			true,
		},
		{
			// The http client's per-request timeout unwraps to
			// context.DeadlineExceeded; classification must win.
			"client timeout wrapping deadline",
			&analysis.FetchError{Kind: analysis.FetchTimeout, Err: context.DeadlineExceeded},
			1,
			true,
		},
		{
			"connection kind",
			&analysis.FetchError{Kind: analysis.FetchConnectionFailed},
			1,
			true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.ShouldRetry(tc.err, tc.attempt); got != tc.want {
				t.Errorf("ShouldRetry(%v, %d) = %v; want %v", tc.err, tc.attempt, got, tc.want)
			}
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := NewExponentialRetryPolicy(5, 100*time.Millisecond, time.Second)

	for attempt := 0; attempt < 5; attempt++ {
		d := p.Backoff(attempt)
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive backoff %v", attempt, d)
		}
		if d > time.Second {
			t.Fatalf("attempt %d: backoff %v exceeds cap", attempt, d)
		}
	}
	// The deterministic half of the delay doubles until the cap.
	if lo, hi := p.Backoff(0), p.Backoff(3); hi < lo/2 {
		t.Fatalf("expected later backoff to dominate: first=%v later=%v", lo, hi)
	}
}
