package domain

import "time"

// Outcome tags the result of one polling cycle.
type Outcome string

const (
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeChanged    Outcome = "changed"
	OutcomeFetchError Outcome = "fetch_error"
	OutcomeParseError Outcome = "parse_error"
)

// State is a step of the polling loop state machine.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StateComparing   State = "comparing"
	StateUnchanged   State = "unchanged"
	StateDispatching State = "dispatching"
	StateSleeping    State = "sleeping"
	StateStopped     State = "stopped"
)

// CycleResult is produced by every iteration of the loop and discarded once
// the loop has logged and recorded it.
type CycleResult struct {
	// Cycle is the 1-based cycle number.
	Cycle int
	// Outcome tags what happened.
	Outcome Outcome
	// Snapshot is set when the fetch and normalization succeeded.
	Snapshot *Snapshot
	// Elapsed is the work duration of the cycle, excluding the sleep.
	Elapsed time.Duration
	// Err is the error behind fetch_error and parse_error outcomes.
	Err error
	// Deliveries holds one result per attempted channel when Outcome is changed.
	Deliveries []ChannelResult
}

// Status is a point-in-time view of the loop for the status endpoint.
type Status struct {
	URL             string     `json:"url"`
	State           State      `json:"state"`
	Cycle           int        `json:"cycle"`
	LastOutcome     Outcome    `json:"lastOutcome,omitempty"`
	LastCycleAt     *time.Time `json:"lastCycleAt,omitempty"`
	LastChangeAt    *time.Time `json:"lastChangeAt,omitempty"`
	BaselineAt      *time.Time `json:"baselineAt,omitempty"`
	ChangesDetected int        `json:"changesDetected"`
}
