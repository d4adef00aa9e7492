package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-speech-pacing-service/internal/models"
	"ai-speech-pacing-service/internal/schema"
)

type published struct {
	kind  string
	key   string
	event any
}

type fakeEventPublisher struct {
	events []published
	err    error
}

func (f *fakeEventPublisher) record(kind string, ctx context.Context, key string, event any) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	f.events = append(f.events, published{kind, key, event})
	return f.err
}

func (f *fakeEventPublisher) PublishResult(ctx context.Context, key string, event any) error {
	return f.record("result", ctx, key, event)
}

func (f *fakeEventPublisher) PublishTranscript(ctx context.Context, key string, event any) error {
	return f.record("final", ctx, key, event)
}

func (f *fakeEventPublisher) PublishClosed(ctx context.Context, key string, event any) error {
	return f.record("closed", ctx, key, event)
}

func TestPublisher_Events(t *testing.T) {
	fake := &fakeEventPublisher{}
	p := NewPublisher(context.Background(), fake, schema.New(), testMeta, time.Second)

	steps := []error{
		p.Result(paced(0, false, "hi")),
		p.Result(paced(0, true, "hi", "there")),
		p.Transcript("hi there"),
		p.Result(paced(1, true, "bye")),
		p.Transcript("bye"),
		p.Close(),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	kinds := []string{"result", "result", "final", "result", "final", "closed"}
	if len(fake.events) != len(kinds) {
		t.Fatalf("expected %d events, got %d", len(kinds), len(fake.events))
	}
	for i, ev := range fake.events {
		if ev.kind != kinds[i] {
			t.Errorf("event %d: expected %s, got %s", i, kinds[i], ev.kind)
		}
		if ev.key != "int-1" {
			t.Errorf("event %d: expected key int-1, got %s", i, ev.key)
		}
	}

	first := fake.events[2].event.(models.TranscriptFinal)
	if first.SegmentID != "int-1-seg-1" || first.Text != "hi there" {
		t.Errorf("unexpected first segment: %+v", first)
	}
	if first.AudioOffsetMs != 0 || first.DurationMs != 200 {
		t.Errorf("expected offsets 0/200ms, got %d/%d", first.AudioOffsetMs, first.DurationMs)
	}
	second := fake.events[4].event.(models.TranscriptFinal)
	if second.SegmentID != "int-1-seg-2" {
		t.Errorf("expected int-1-seg-2, got %s", second.SegmentID)
	}
	closed := fake.events[5].event.(models.StreamClosed)
	if closed.Segments != 2 {
		t.Errorf("expected 2 segments, got %d", closed.Segments)
	}
}

func TestPublisher_OutlivesStreamContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeEventPublisher{}
	p := NewPublisher(ctx, fake, nil, testMeta, time.Second)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(fake.events) != 1 {
		t.Fatalf("expected close event to be published, got %d events", len(fake.events))
	}
}

func TestPublisher_PropagatesErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := NewPublisher(context.Background(), &fakeEventPublisher{err: boom}, nil, testMeta, time.Second)

	if err := p.Result(paced(0, true, "hi")); !errors.Is(err, boom) {
		t.Errorf("expected broker error, got %v", err)
	}
}
