// Package analysis defines core types shared across subsystems.
package analysis

import (
	"net/http"
	"time"
)

// Status represents the lifecycle state of an analysis job.
type Status string

// Job status values held in the status store.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Request is the full record kept for one submitted analysis. The manager
// owns the record while the job is non-terminal; once terminal it is an
// immutable shared-read artifact.
type Request struct {
	ID              string     `json:"id"`
	Target          string     `json:"target"`
	SecondaryTarget string     `json:"secondary_target,omitempty"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	Message         string     `json:"message"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Result          *Result    `json:"result,omitempty"`
	ErrorDetail     string     `json:"error_detail,omitempty"`
}

// Elapsed returns the wall-clock time the request has been alive, frozen at
// CompletedAt for terminal records.
func (r Request) Elapsed(now time.Time) time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.CreatedAt)
	}
	return now.Sub(r.CreatedAt)
}

// Result carries everything a completed job hands to its caller.
type Result struct {
	Strategy  Strategy          `json:"strategy"`
	Primary   ExtractionResult  `json:"primary"`
	Secondary *ExtractionResult `json:"secondary,omitempty"`
}

// Warning records a facet-level extraction failure that did not abort the job.
type Warning struct {
	Facet  string `json:"facet"`
	Detail string `json:"detail"`
}

// Identity captures the basic naming facet of an analyzed page.
type Identity struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Headings    []string `json:"headings,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// PricingSignals aggregates price mentions found on a page.
type PricingSignals struct {
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Average float64   `json:"average"`
	Samples []float64 `json:"samples,omitempty"`
}

// Location holds free-text address candidates and location keywords.
type Location struct {
	Addresses []string `json:"addresses,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}

// ExtractionResult is the merged output of all facet extractors for one URL.
// It is always produced, even when every facet failed; failures appear only
// as entries in Warnings.
type ExtractionResult struct {
	SourceURL       string            `json:"source_url"`
	Identity        Identity          `json:"identity"`
	Pricing         *PricingSignals   `json:"pricing,omitempty"`
	Amenities       []string          `json:"amenities,omitempty"`
	Location        *Location         `json:"location,omitempty"`
	SocialLinks     map[string]string `json:"social_links,omitempty"`
	ReviewPlatforms []string          `json:"review_platforms,omitempty"`
	Warnings        []Warning         `json:"warnings,omitempty"`
}

// Empty reports whether no facet produced any data.
func (e ExtractionResult) Empty() bool {
	return e.Identity.Name == "" &&
		e.Identity.Description == "" &&
		len(e.Identity.Headings) == 0 &&
		e.Pricing == nil &&
		len(e.Amenities) == 0 &&
		e.Location == nil &&
		len(e.SocialLinks) == 0 &&
		len(e.ReviewPlatforms) == 0
}

// Budget is the spend recommendation inside a Strategy. Allocation maps
// channel name to a fraction of the monthly budget; fractions sum to 1.
type Budget struct {
	Tier       string             `json:"tier"`
	Monthly    float64            `json:"monthly"`
	Daily      float64            `json:"daily"`
	Allocation map[string]float64 `json:"allocation"`
}

// Phase is one step of the strategy implementation timeline.
type Phase struct {
	Name     string   `json:"phase"`
	Duration string   `json:"duration"`
	Tasks    []string `json:"tasks"`
}

// Strategy is the synthesized marketing recommendation.
type Strategy struct {
	Audience      []string `json:"audience"`
	SellingPoints []string `json:"selling_points,omitempty"`
	Opportunities []string `json:"opportunities,omitempty"`
	Budget        Budget   `json:"budget"`
	Timeline      []Phase  `json:"timeline"`
	KPIs          []string `json:"kpis"`
}

// Task wraps one queued analysis ready to run.
type Task struct {
	RequestID       string
	Target          string
	SecondaryTarget string
	Submitted       time.Time
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	RequestID string
	URL       string
	Headers   http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
}
