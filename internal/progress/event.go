// Package progress defines the milestone events emitted by analysis workers
// and the hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobQueued     Stage = "JOB_QUEUED"
	StageJobDispatched Stage = "JOB_DISPATCHED"
	StageFetchStart    Stage = "FETCH_START"
	StageFetchDone     Stage = "FETCH_DONE"
	StageSynthStart    Stage = "SYNTH_START"
	StageJobDone       Stage = "JOB_DONE"
	StageJobError      Stage = "JOB_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of an analysis run.
type Event struct {
	// RequestID identifies the analysis request the event belongs to.
	RequestID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// Site optionally scopes fetch events to a host label.
	Site string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Progress carries the 0-100 completion value at the milestone.
	Progress int
	// Dur captures execution latency for fetches and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RequestID == "" {
		return errors.New("request id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobQueued, StageJobDispatched, StageSynthStart, StageJobDone, StageJobError:
	case StageFetchStart:
		if e.Site == "" {
			return errors.New("fetch start requires site")
		}
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
