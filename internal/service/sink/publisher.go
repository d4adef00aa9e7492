package sink

import (
	"context"
	"time"

	"ai-speech-pacing-service/internal/models"
	"ai-speech-pacing-service/internal/schema"
	"ai-speech-pacing-service/internal/service/segment"
	"ai-speech-pacing-service/internal/service/stt"
)

// EventPublisher is the subset of events.Publisher used by Publisher.
type EventPublisher interface {
	PublishResult(ctx context.Context, key string, event any) error
	PublishTranscript(ctx context.Context, key string, event any) error
	PublishClosed(ctx context.Context, key string, event any) error
}

// Publisher turns paced output into Kafka events keyed by interaction ID.
// Each forwarded transcript closes one segment of the interaction.
type Publisher struct {
	ctx       context.Context
	pub       EventPublisher
	validator *schema.Validator
	meta      models.Meta
	timeout   time.Duration

	segments *segment.Sequence

	// Only touched from the scheduler loop.
	lastFinal stt.Result
}

// NewPublisher creates a publishing sink. Publishes are bounded by timeout
// and outlive cancellation of ctx so the close event still goes out when the
// stream is torn down.
func NewPublisher(ctx context.Context, pub EventPublisher, validator *schema.Validator, meta models.Meta, timeout time.Duration) *Publisher {
	return &Publisher{
		ctx:       context.WithoutCancel(ctx),
		pub:       pub,
		validator: validator,
		meta:      meta,
		timeout:   timeout,
		segments:  segment.NewSequence(meta.InteractionID),
	}
}

// Result publishes r as a transcript.paced event.
func (p *Publisher) Result(r stt.Result) error {
	if r.Final {
		p.lastFinal = r
	}
	return p.send(p.pub.PublishResult, models.NewTranscriptPaced(p.meta, r, time.Now()))
}

// Transcript publishes a transcript.final event for the next segment.
func (p *Publisher) Transcript(text string) error {
	ev := models.NewTranscriptFinal(p.meta, p.segments.Next(), text, p.lastFinal, time.Now())
	p.lastFinal = stt.Result{}
	return p.send(p.pub.PublishTranscript, ev)
}

// Close publishes the stream.closed event.
func (p *Publisher) Close() error {
	return p.send(p.pub.PublishClosed, models.NewStreamClosed(p.meta, p.segments.Count(), time.Now()))
}

func (p *Publisher) send(publish func(context.Context, string, any) error, event any) error {
	if p.validator != nil {
		if err := p.validator.Validate(event); err != nil {
			return err
		}
	}
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return publish(ctx, p.meta.InteractionID, event)
}
