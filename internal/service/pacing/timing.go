// Package pacing holds recognizer results back until the words they contain
// have been spoken, then releases them in due order.
package pacing

import (
	"fmt"
	"strings"
	"time"

	"ai-speech-pacing-service/internal/service/stt"
)

// EmitAt selects which word boundary makes a word due.
type EmitAt int

const (
	// EmitAtStart surfaces a word as soon as it begins being spoken.
	EmitAtStart EmitAt = iota
	// EmitAtEnd waits until a word has been completely spoken.
	EmitAtEnd
)

// String returns the string representation of the policy.
func (e EmitAt) String() string {
	switch e {
	case EmitAtStart:
		return "start"
	case EmitAtEnd:
		return "end"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// ParseEmitAt parses "start" or "end".
func ParseEmitAt(s string) (EmitAt, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return EmitAtStart, nil
	case "end":
		return EmitAtEnd, nil
	default:
		return EmitAtStart, fmt.Errorf("pacing: unknown emit-at policy %q", s)
	}
}

// Due returns the session offset at which the word becomes due.
func (e EmitAt) Due(t stt.WordTiming) time.Duration {
	if e == EmitAtEnd {
		return t.End
	}
	return t.Start
}
