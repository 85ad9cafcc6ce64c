package analysis

import (
	"testing"
	"time"
)

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	if StatusQueued.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Fatal("queued/processing must not be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusError.IsTerminal() {
		t.Fatal("completed/error must be terminal")
	}
}

func TestRequestElapsed(t *testing.T) {
	t.Parallel()

	created := time.Unix(1000, 0)
	req := Request{CreatedAt: created}
	if got := req.Elapsed(created.Add(3 * time.Second)); got != 3*time.Second {
		t.Fatalf("Elapsed() = %v, want 3s", got)
	}

	done := created.Add(7 * time.Second)
	req.CompletedAt = &done
	if got := req.Elapsed(created.Add(time.Hour)); got != 7*time.Second {
		t.Fatalf("Elapsed() after completion = %v, want frozen 7s", got)
	}
}

func TestExtractionResultEmpty(t *testing.T) {
	t.Parallel()

	var res ExtractionResult
	res.Warnings = append(res.Warnings, Warning{Facet: "fetch", Detail: "refused"})
	if !res.Empty() {
		t.Fatal("warnings alone must not count as data")
	}

	res.Amenities = []string{"pool"}
	if res.Empty() {
		t.Fatal("amenities present, Empty() must be false")
	}
}
