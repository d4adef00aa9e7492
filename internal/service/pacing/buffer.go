package pacing

import (
	"errors"
	"slices"
	"time"

	"ai-speech-pacing-service/internal/service/stt"
)

// Errors returned when a result cannot be buffered.
var (
	ErrNoTimestamps        = errors.New("result has no word timestamps")
	ErrUnorderedTimestamps = errors.New("result word timestamps are not in due order")
)

// Queue names one of the two buffer queues.
type Queue int

const (
	Final Queue = iota
	Interim
)

// String returns the queue name.
func (q Queue) String() string {
	if q == Final {
		return "final"
	}
	return "interim"
}

// Buffer holds results that have not been fully emitted yet.
//
// Every buffered result carries exactly one alternative with at least one
// timestamp. Buffered results are never modified by emission: partially due
// results are handed out as cropped copies.
type Buffer struct {
	emitAt  EmitAt
	final   []stt.Result
	interim []stt.Result
}

// NewBuffer creates an empty buffer using the given due policy.
func NewBuffer(emitAt EmitAt) *Buffer {
	return &Buffer{emitAt: emitAt}
}

// Ingest buffers r. Interim results with an index at or below r.Index are
// superseded and discarded; the number discarded is returned.
func (b *Buffer) Ingest(r stt.Result) (int, error) {
	alt, ok := r.First()
	if !ok || len(alt.Timestamps) == 0 {
		return 0, ErrNoTimestamps
	}
	for i := 1; i < len(alt.Timestamps); i++ {
		if b.emitAt.Due(alt.Timestamps[i]) < b.emitAt.Due(alt.Timestamps[i-1]) {
			return 0, ErrUnorderedTimestamps
		}
	}

	// Later alternatives carry no timestamps and cannot be paced.
	r.Alternatives = []stt.Alternative{{
		Transcript: alt.Transcript,
		Timestamps: slices.Clone(alt.Timestamps),
	}}

	before := len(b.interim)
	b.interim = slices.DeleteFunc(b.interim, func(q stt.Result) bool {
		return q.Index <= r.Index
	})
	superseded := before - len(b.interim)

	if r.Final {
		b.final = append(b.final, r)
	} else {
		b.interim = append(b.interim, r)
	}
	return superseded, nil
}

// IsWithinRange reports whether at least the first word of r is due.
func (b *Buffer) IsWithinRange(r stt.Result, cutoff time.Duration) bool {
	ts := r.Alternatives[0].Timestamps
	return b.emitAt.Due(ts[0]) <= cutoff
}

// IsFullyWithinRange reports whether every word of r is due.
func (b *Buffer) IsFullyWithinRange(r stt.Result, cutoff time.Duration) bool {
	ts := r.Alternatives[0].Timestamps
	return b.emitAt.Due(ts[len(ts)-1]) <= cutoff
}

// Crop returns a copy of r holding only the words due at cutoff. The copy is
// never final, since part of the source is still withheld.
func (b *Buffer) Crop(r stt.Result, cutoff time.Duration) stt.Result {
	ts := r.Alternatives[0].Timestamps
	n := 0
	for n < len(ts) && b.emitAt.Due(ts[n]) <= cutoff {
		n++
	}
	kept := slices.Clone(ts[:n])
	return stt.Result{
		Index: r.Index,
		Final: false,
		Alternatives: []stt.Alternative{{
			Transcript: stt.JoinWords(kept),
			Timestamps: kept,
		}},
	}
}

// TakeDue returns the due part of the front result of q. A fully due result
// is removed from the buffer and returned unmodified; a partially due one
// stays buffered and a cropped copy is returned.
func (b *Buffer) TakeDue(q Queue, cutoff time.Duration) (stt.Result, bool) {
	queue := b.queue(q)
	if len(*queue) == 0 || !b.IsWithinRange((*queue)[0], cutoff) {
		return stt.Result{}, false
	}
	front := (*queue)[0]
	if b.IsFullyWithinRange(front, cutoff) {
		(*queue)[0] = stt.Result{}
		*queue = (*queue)[1:]
		return front, true
	}
	return b.Crop(front, cutoff), true
}

// Front returns the first result of q without removing it.
func (b *Buffer) Front(q Queue) (stt.Result, bool) {
	queue := b.queue(q)
	if len(*queue) == 0 {
		return stt.Result{}, false
	}
	return (*queue)[0], true
}

// NextDue returns the first due instant of r strictly after cutoff.
func (b *Buffer) NextDue(r stt.Result, cutoff time.Duration) (time.Duration, bool) {
	for _, t := range r.Alternatives[0].Timestamps {
		if due := b.emitAt.Due(t); due > cutoff {
			return due, true
		}
	}
	return 0, false
}

// Len returns the number of buffered results in both queues.
func (b *Buffer) Len() int {
	return len(b.final) + len(b.interim)
}

func (b *Buffer) queue(q Queue) *[]stt.Result {
	if q == Final {
		return &b.final
	}
	return &b.interim
}
