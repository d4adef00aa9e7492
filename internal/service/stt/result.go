package stt

import (
	"strings"
	"time"
)

// WordTiming is a recognised word with offsets from the start of the session.
type WordTiming struct {
	Word  string
	Start time.Duration
	End   time.Duration
}

// Alternative is one recognition hypothesis.
type Alternative struct {
	Transcript string
	Timestamps []WordTiming
}

// Result is one recognizer output. Index identifies the utterance span the
// result covers and never decreases within a session.
type Result struct {
	Index        int
	Final        bool
	Alternatives []Alternative
}

// First returns the first alternative, if any.
func (r Result) First() (Alternative, bool) {
	if len(r.Alternatives) == 0 {
		return Alternative{}, false
	}
	return r.Alternatives[0], true
}

// Transcript returns the transcript of the first alternative.
func (r Result) Transcript() string {
	alt, _ := r.First()
	return alt.Transcript
}

// JoinWords rebuilds a transcript from word timings.
func JoinWords(timings []WordTiming) string {
	words := make([]string, len(timings))
	for i, t := range timings {
		words[i] = t.Word
	}
	return strings.Join(words, " ")
}
