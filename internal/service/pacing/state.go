package pacing

import (
	"errors"
	"fmt"
)

// State represents the lifecycle state of a scheduler.
type State int32

const (
	// StateIdle - No timer armed, stream open, waiting for results.
	StateIdle State = iota
	// StateArmed - A wake timer is pending.
	StateArmed
	// StateDraining - Several final results are due at once and are being
	// emitted back-to-back.
	StateDraining
	// StateClosed - Producer ended and the buffer drained. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// Scheduler errors.
var (
	// ErrStalled means a buffered result has no word left to wait for, so no
	// wake could be scheduled. It indicates a broken due check.
	ErrStalled        = errors.New("pacing: buffered result has no pending word")
	ErrAlreadyStarted = errors.New("pacing: scheduler already started")
)
