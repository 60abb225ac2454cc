package domain

import "time"

// ReferenceRange is the high/low of the most recently accepted
// reference-timeframe bar. It is replaced wholesale when a new qualifying bar
// closes and is never mutated otherwise.
type ReferenceRange struct {
	High     float64   // Upper boundary of the range
	Low      float64   // Lower boundary of the range
	OpenTime time.Time // Open time of the bar the range was taken from
}

// IsValid reports whether the range has been initialized. A range with either
// boundary at zero disables the breakout state machines.
func (r ReferenceRange) IsValid() bool {
	return r.High > r.Low && r.Low > 0
}

// SidePhase enumerates the detection phases of one side's breakout-reversal
// state machine.
type SidePhase int

const (
	PhaseIdle SidePhase = iota
	PhaseBreakoutDetected
	PhaseReversalConfirmed
)

// String returns a human readable phase name for logging.
func (p SidePhase) String() string {
	switch p {
	case PhaseBreakoutDetected:
		return "breakout_detected"
	case PhaseReversalConfirmed:
		return "reversal_confirmed"
	default:
		return "idle"
	}
}

// SideState holds the per-direction detection state. It is owned exclusively
// by the side's state machine and read-only to every other component.
type SideState struct {
	Phase          SidePhase
	BreakoutTime   time.Time
	BreakoutVolume float64
	ReversalTime   time.Time
	ReversalVolume float64
}

// Reset clears the state back to idle with all fields zeroed. Called whenever
// the reference range is replaced or a trade decision has been made.
func (s *SideState) Reset() {
	*s = SideState{}
}
