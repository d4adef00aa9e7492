// Package models defines the data structures for paced transcript events.
package models

import (
	"time"

	"ai-speech-pacing-service/internal/service/stt"
)

// Event types carried in the eventType field.
const (
	EventTypePaced  = "transcript.paced"
	EventTypeFinal  = "transcript.final"
	EventTypeClosed = "stream.closed"
)

// Meta identifies the stream an event belongs to.
type Meta struct {
	SessionID     string
	InteractionID string
	TenantID      string
}

// Word is one paced word with offsets from the start of the session.
type Word struct {
	Word    string `json:"word"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
}

// TranscriptPaced is emitted for every result released by the scheduler,
// including cropped partial results.
type TranscriptPaced struct {
	EventType     string `json:"eventType" jsonschema:"enum=transcript.paced"`
	SessionID     string `json:"sessionId"`
	InteractionID string `json:"interactionId"`
	TenantID      string `json:"tenantId"`
	Timestamp     int64  `json:"timestamp"`
	Index         int    `json:"index"`
	Final         bool   `json:"final"`
	Text          string `json:"text"`
	Words         []Word `json:"words"`
}

// TranscriptFinal carries the text of a final result once every word is due.
type TranscriptFinal struct {
	EventType     string `json:"eventType" jsonschema:"enum=transcript.final"`
	SessionID     string `json:"sessionId"`
	InteractionID string `json:"interactionId"`
	TenantID      string `json:"tenantId"`
	Timestamp     int64  `json:"timestamp"`
	SegmentID     string `json:"segmentId"`
	Text          string `json:"text"`
	AudioOffsetMs int64  `json:"audioOffsetMs"`
	DurationMs    int64  `json:"durationMs"`
}

// StreamClosed marks the end of a paced stream.
type StreamClosed struct {
	EventType     string `json:"eventType" jsonschema:"enum=stream.closed"`
	SessionID     string `json:"sessionId"`
	InteractionID string `json:"interactionId"`
	TenantID      string `json:"tenantId"`
	Timestamp     int64  `json:"timestamp"`
	Segments      int    `json:"segments"`
}

// NewTranscriptPaced builds the event for an emitted result.
func NewTranscriptPaced(meta Meta, r stt.Result, now time.Time) TranscriptPaced {
	alt, _ := r.First()
	words := make([]Word, len(alt.Timestamps))
	for i, t := range alt.Timestamps {
		words[i] = Word{Word: t.Word, StartMs: t.Start.Milliseconds(), EndMs: t.End.Milliseconds()}
	}
	return TranscriptPaced{
		EventType:     EventTypePaced,
		SessionID:     meta.SessionID,
		InteractionID: meta.InteractionID,
		TenantID:      meta.TenantID,
		Timestamp:     now.UnixMilli(),
		Index:         r.Index,
		Final:         r.Final,
		Text:          alt.Transcript,
		Words:         words,
	}
}

// NewTranscriptFinal builds the event for a forwarded transcript. r is the
// final result the text came from and supplies the audio offsets; it may be
// empty.
func NewTranscriptFinal(meta Meta, segmentID, text string, r stt.Result, now time.Time) TranscriptFinal {
	ev := TranscriptFinal{
		EventType:     EventTypeFinal,
		SessionID:     meta.SessionID,
		InteractionID: meta.InteractionID,
		TenantID:      meta.TenantID,
		Timestamp:     now.UnixMilli(),
		SegmentID:     segmentID,
		Text:          text,
	}
	if alt, ok := r.First(); ok && len(alt.Timestamps) > 0 {
		first, last := alt.Timestamps[0], alt.Timestamps[len(alt.Timestamps)-1]
		ev.AudioOffsetMs = first.Start.Milliseconds()
		ev.DurationMs = (last.End - first.Start).Milliseconds()
	}
	return ev
}

// NewStreamClosed builds the end-of-stream event.
func NewStreamClosed(meta Meta, segments int, now time.Time) StreamClosed {
	return StreamClosed{
		EventType:     EventTypeClosed,
		SessionID:     meta.SessionID,
		InteractionID: meta.InteractionID,
		TenantID:      meta.TenantID,
		Timestamp:     now.UnixMilli(),
		Segments:      segments,
	}
}
