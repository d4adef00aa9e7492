// Package segment numbers the transcript segments of an interaction.
// Each final transcript forwarded downstream closes one segment.
package segment

import (
	"fmt"
	"sync/atomic"
)

// Sequence hands out segment IDs for one interaction, numbered from 1.
// Safe for concurrent use.
type Sequence struct {
	interactionID string
	counter       atomic.Uint64
}

// NewSequence creates the sequence for interactionID.
func NewSequence(interactionID string) *Sequence {
	return &Sequence{interactionID: interactionID}
}

// Next closes a segment and returns its ID.
func (s *Sequence) Next() string {
	return ID(s.interactionID, s.counter.Add(1))
}

// Count returns how many segments were closed.
func (s *Sequence) Count() int {
	return int(s.counter.Load())
}

// ID formats the ID of segment n of an interaction.
func ID(interactionID string, n uint64) string {
	return fmt.Sprintf("%s-seg-%d", interactionID, n)
}
