package pacing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"ai-speech-pacing-service/internal/observability/logging"
	"ai-speech-pacing-service/internal/observability/metrics"
	"ai-speech-pacing-service/internal/service/stt"
)

// Config holds the pacing options of one scheduler.
type Config struct {
	EmitAt EmitAt
	Delay  time.Duration

	// MaxDrain bounds how many fully due final results a single turn emits
	// before yielding to the event loop. Zero or less means unbounded.
	MaxDrain int
}

// DefaultConfig returns the default pacing options.
func DefaultConfig() Config {
	return Config{
		EmitAt:   EmitAtStart,
		Delay:    0,
		MaxDrain: 64,
	}
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.wall = c }
}

// WithLogger sets the scheduler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithMetrics sets the metrics sink. Defaults to metrics.DefaultMetrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

type messageKind int

const (
	messageResult messageKind = iota
	messageEnd
	messageError
)

type message struct {
	kind   messageKind
	result stt.Result
	err    error
}

// Scheduler buffers results from a producer and emits each word to a sink no
// earlier than its due instant.
//
// All buffer, timer and state mutation happens on one loop goroutine.
// Producer callbacks only post messages to it, so they may be called from
// any goroutine.
//
// State transitions:
//
//	IDLE ──ingest──→ (tick) ──→ ARMED | IDLE
//	ARMED ──timer / ingest──→ (tick) ──→ DRAINING ──→ ARMED | IDLE | CLOSED
//	any ──producer end + empty buffer──→ CLOSED
type Scheduler struct {
	cfg      Config
	producer stt.Producer
	sink     Sink
	wall     clockwork.Clock
	clock    *Clock
	buf      *Buffer
	log      zerolog.Logger
	metrics  *metrics.Metrics

	// Owned by the loop goroutine.
	timer  clockwork.Timer
	wakeAt time.Duration
	ended  bool

	state   atomic.Int32
	started atomic.Bool

	inbox  chan message
	yield  chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// New creates a scheduler. The session clock starts now. producer may be nil,
// in which case results are pushed through the Callback methods directly.
func New(cfg Config, producer stt.Producer, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		producer: producer,
		sink:     sink,
		wall:     clockwork.NewRealClock(),
		buf:      NewBuffer(cfg.EmitAt),
		log:      logging.WithComponent("pacing"),
		metrics:  metrics.DefaultMetrics,
		inbox:    make(chan message, 64),
		yield:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		cancel:   func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = NewClock(s.wall, cfg.Delay)
	s.setState(StateIdle)
	return s
}

// Start launches the event loop and starts the producer.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(ctx)

	if s.producer != nil {
		if err := s.producer.Start(ctx, s); err != nil {
			cancel()
			<-s.done
			return fmt.Errorf("pacing: start producer: %w", err)
		}
	}

	s.log.Debug().
		Str("emitAt", s.cfg.EmitAt.String()).
		Dur("delay", s.cfg.Delay).
		Time("sessionStart", s.clock.Start()).
		Msg("Pacing scheduler started")
	return nil
}

// Wait blocks until the scheduler closes or fails. It returns nil once the
// producer ended and every buffered word was emitted.
func (s *Scheduler) Wait() error {
	<-s.done
	return s.err
}

// Run starts the scheduler and waits for it to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Wait()
}

// Done is closed when the event loop exits.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// State returns the current scheduler state. Safe for concurrent use.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Stop asks the producer to stop, if it exposes a stop handle. The scheduler
// keeps draining whatever the producer delivers before it ends.
func (s *Scheduler) Stop() error {
	if c, ok := s.producer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// --- stt.Callback implementation ---

// OnResult queues a result for ingestion.
func (s *Scheduler) OnResult(r stt.Result) {
	s.post(message{kind: messageResult, result: r})
}

// OnEnd signals that the producer will deliver no more results.
func (s *Scheduler) OnEnd() {
	s.post(message{kind: messageEnd})
}

// OnError aborts the stream with err.
func (s *Scheduler) OnError(err error) {
	s.post(message{kind: messageError, err: err})
}

func (s *Scheduler) post(m message) {
	select {
	case s.inbox <- m:
	case <-s.done:
		s.log.Warn().
			Int("kind", int(m.kind)).
			Str("state", s.State().String()).
			Msg("Scheduler finished, dropping producer message")
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()
	defer s.stopTimer()

	s.err = s.run(ctx)
	if s.err != nil && !errors.Is(s.err, context.Canceled) {
		s.log.Error().Err(s.err).Str("state", s.State().String()).Msg("Pacing scheduler failed")
	}
}

func (s *Scheduler) run(ctx context.Context) error {
	for {
		var wake <-chan time.Time
		if s.timer != nil {
			wake = s.timer.Chan()
		}

		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-s.inbox:
			err = s.handle(m)
		case <-wake:
			s.timer = nil
			err = s.tick()
		case <-s.yield:
			err = s.tick()
		}
		if err != nil {
			return err
		}
		if s.State().IsTerminal() {
			return nil
		}
	}
}

func (s *Scheduler) handle(m message) error {
	switch m.kind {
	case messageResult:
		return s.ingest(m.result)
	case messageEnd:
		s.ended = true
		s.log.Debug().Int("buffered", s.buf.Len()).Msg("Producer ended, draining buffer")
		return s.tick()
	case messageError:
		s.metrics.RecordProducerError()
		return fmt.Errorf("pacing: producer failed: %w", m.err)
	default:
		return fmt.Errorf("pacing: unexpected message kind %d", m.kind)
	}
}

func (s *Scheduler) ingest(r stt.Result) error {
	superseded, err := s.buf.Ingest(r)
	if err != nil {
		s.metrics.RecordResultRejected(rejectReason(err))
		return fmt.Errorf("pacing: ingest result %d: %w", r.Index, err)
	}
	s.metrics.RecordResultIngested(r.Final)
	if superseded > 0 {
		s.metrics.RecordInterimSuperseded(superseded)
		s.log.Debug().
			Int("index", r.Index).
			Bool("final", r.Final).
			Int("superseded", superseded).
			Msg("Interim results superseded")
	}
	// Tick rather than reschedule: content that is already due must not wait
	// for a timer armed before this result arrived.
	return s.tick()
}

// tick emits everything currently due and arms the next wake.
func (s *Scheduler) tick() error {
	s.stopTimer()
	s.metrics.RecordTick()

	cutoff := s.clock.Cutoff()
	drained := 0
	for {
		q := Final
		r, ok := s.buf.TakeDue(q, cutoff)
		if !ok {
			q = Interim
			r, ok = s.buf.TakeDue(q, cutoff)
		}
		if !ok {
			break
		}

		s.emit(r, emittedKind(q, r), cutoff)
		if !r.Final {
			// Interim or cropped: nothing else can be due before the next wake.
			break
		}
		s.forward(r)

		drained++
		s.setState(StateDraining)
		if s.cfg.MaxDrain > 0 && drained >= s.cfg.MaxDrain {
			select {
			case s.yield <- struct{}{}:
			default:
			}
			return nil
		}
		cutoff = s.clock.Cutoff()
	}
	return s.scheduleNextTick(cutoff)
}

func (s *Scheduler) scheduleNextTick(cutoff time.Duration) error {
	next, ok := s.buf.Front(Final)
	if !ok {
		next, ok = s.buf.Front(Interim)
	}
	if !ok {
		if s.ended {
			return s.close()
		}
		s.setState(StateIdle)
		return nil
	}

	due, ok := s.buf.NextDue(next, cutoff)
	if !ok {
		return fmt.Errorf("%w: result %d at cutoff %v", ErrStalled, next.Index, cutoff)
	}
	wakeAfter := s.clock.WakeAfter(due)
	s.timer = s.clock.NewTimer(wakeAfter)
	s.wakeAt = due
	s.setState(StateArmed)
	s.metrics.RecordTimerArmed()

	s.log.Debug().
		Int("index", next.Index).
		Dur("wakeAt", s.wakeAt).
		Dur("wakeAfter", wakeAfter).
		Msg("Wake timer armed")
	return nil
}

func (s *Scheduler) emit(r stt.Result, kind string, cutoff time.Duration) {
	ts := r.Alternatives[0].Timestamps
	lag := cutoff - s.cfg.EmitAt.Due(ts[len(ts)-1])
	s.metrics.RecordResultEmitted(kind, lag.Seconds())

	s.log.Debug().
		Int("index", r.Index).
		Str("kind", kind).
		Int("words", len(ts)).
		Dur("cutoff", cutoff).
		Msg("Emitting result")

	if err := s.sink.Result(r); err != nil {
		s.metrics.RecordSinkError("result")
		s.log.Error().Err(err).Int("index", r.Index).Msg("Sink rejected result")
	}
}

func (s *Scheduler) forward(r stt.Result) {
	s.metrics.RecordTranscriptForwarded()
	if err := s.sink.Transcript(r.Transcript()); err != nil {
		s.metrics.RecordSinkError("transcript")
		s.log.Error().Err(err).Int("index", r.Index).Msg("Sink rejected transcript")
	}
}

func (s *Scheduler) close() error {
	s.setState(StateClosed)
	s.metrics.RecordPacingClosed()
	s.log.Info().Dur("elapsed", s.clock.Elapsed()).Msg("Pacing stream drained and closed")

	if err := s.sink.Close(); err != nil {
		s.metrics.RecordSinkError("close")
		s.log.Error().Err(err).Msg("Sink failed to close")
	}
	return nil
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// emittedKind labels a result taken from q. A non-final result taken from the
// final queue is a cropped prefix of a final result.
func emittedKind(q Queue, r stt.Result) string {
	switch {
	case r.Final:
		return metrics.KindFinal
	case q == Final:
		return metrics.KindCropped
	default:
		return metrics.KindInterim
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoTimestamps):
		return "no_timestamps"
	case errors.Is(err, ErrUnorderedTimestamps):
		return "unordered_timestamps"
	default:
		return "other"
	}
}
