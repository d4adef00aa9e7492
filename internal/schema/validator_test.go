package schema

import (
	"errors"
	"testing"
	"time"

	"ai-speech-pacing-service/internal/models"
	"ai-speech-pacing-service/internal/service/stt"
)

var meta = models.Meta{SessionID: "sess-1", InteractionID: "int-1", TenantID: "tenant-1"}

func TestValidator_AcceptsEvents(t *testing.T) {
	v := New()
	now := time.Now()
	r := stt.Result{Index: 2, Final: true, Alternatives: []stt.Alternative{{
		Transcript: "hi there",
		Timestamps: []stt.WordTiming{
			{Word: "hi", Start: 0, End: 300 * time.Millisecond},
			{Word: "there", Start: 300 * time.Millisecond, End: 600 * time.Millisecond},
		},
	}}}

	events := map[string]any{
		"paced":       models.NewTranscriptPaced(meta, r, now),
		"paced empty": models.NewTranscriptPaced(meta, stt.Result{}, now),
		"final":       models.NewTranscriptFinal(meta, "int-1-seg-1", "hi there", r, now),
		"closed":      models.NewStreamClosed(meta, 1, now),
		"pointer":     ptr(models.NewStreamClosed(meta, 0, now)),
	}
	for name, ev := range events {
		t.Run(name, func(t *testing.T) {
			if err := v.Validate(ev); err != nil {
				t.Errorf("expected valid event, got %v", err)
			}
		})
	}
}

func TestValidator_Rejects(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		event any
		want  error
	}{
		{"unknown type", map[string]any{"eventType": "transcript.partial"}, ErrUnknownEvent},
		{"no type", map[string]any{"text": "hi"}, ErrUnknownEvent},
		{"missing field", map[string]any{
			"eventType": models.EventTypeClosed, "sessionId": "s", "interactionId": "i", "tenantId": "t", "timestamp": 1,
		}, ErrInvalidEvent},
		{"wrong type", map[string]any{
			"eventType": models.EventTypeClosed, "sessionId": "s", "interactionId": "i", "tenantId": "t", "timestamp": "now", "segments": 1,
		}, ErrInvalidEvent},
		{"fractional integer", map[string]any{
			"eventType": models.EventTypeClosed, "sessionId": "s", "interactionId": "i", "tenantId": "t", "timestamp": 1.5, "segments": 1,
		}, ErrInvalidEvent},
		{"bad word", map[string]any{
			"eventType": models.EventTypePaced, "sessionId": "s", "interactionId": "i", "tenantId": "t", "timestamp": 1,
			"index": 0, "final": true, "text": "hi", "words": []any{map[string]any{"word": "hi", "startMs": 0}},
		}, ErrInvalidEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.Validate(tt.event); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidator_Schema(t *testing.T) {
	v := New()

	want := []string{models.EventTypeClosed, models.EventTypeFinal, models.EventTypePaced}
	got := v.EventTypes()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	s, ok := v.Schema(models.EventTypePaced)
	if !ok {
		t.Fatal("expected a schema for paced events")
	}
	if _, ok := s.Properties.Get("words"); !ok {
		t.Error("expected the paced schema to describe words")
	}
	if _, ok := v.Schema("nope"); ok {
		t.Error("expected no schema for an unknown type")
	}
}

func ptr[T any](v T) *T { return &v }
