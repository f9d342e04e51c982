package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageFetchDone     Stage = "FETCH_DONE"
	StageCandidateDone Stage = "CANDIDATE_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusError StatusClass = "error"
	StatusOther StatusClass = "other"
)

// Outcome is the final disposition of a candidate URL.
type Outcome string

// Candidate outcomes.
const (
	OutcomeClassified Outcome = "classified"
	OutcomeUnmatched  Outcome = "unmatched"
	OutcomeFailed     Outcome = "failed"
)

// Event captures one step of run progress.
type Event struct {
	// RunID identifies the harvest run in 16-byte UUID form.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Site is the lowercase host of URL, used as a metric label.
	Site string
	URL  string
	// Bytes is the response body size for fetch events.
	Bytes       int64
	StatusClass StatusClass
	Outcome     Outcome
	// Kind is the subscription kind for classified candidates.
	Kind     string
	Attempts int
	Dur      time.Duration
	Note     string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	case StageCandidateDone:
		if e.Outcome == "" {
			return errors.New("candidate done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch events. Zero means no
// response was received.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code == 0:
		return StatusError
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
