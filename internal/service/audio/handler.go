// Package audio provides the session handler that feeds audio to an STT
// adapter and paces its results to a sink.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"ai-speech-pacing-service/internal/models"
	"ai-speech-pacing-service/internal/observability/logging"
	"ai-speech-pacing-service/internal/observability/metrics"
	"ai-speech-pacing-service/internal/service/pacing"
	"ai-speech-pacing-service/internal/service/stt"
)

// SessionLimits defines safety guardrails for a session.
// These prevent unbounded resource usage and ensure backpressure.
type SessionLimits struct {
	MaxAudioBytes int64         // Max audio accepted per session
	MaxDuration   time.Duration // Max session duration
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() SessionLimits {
	return SessionLimits{
		MaxAudioBytes: 5 * 1024 * 1024, // 5MB (~5 minutes at 8kHz 16-bit mono)
		MaxDuration:   5 * time.Minute,
	}
}

var (
	ErrLimitExceeded = errors.New("session limit exceeded")
	ErrAudioClosed   = errors.New("audio input already closed")
)

// Option customises a Handler.
type Option func(*Handler)

// WithClock sets the time source used for the duration limit and pacing.
func WithClock(c clockwork.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// Handler manages one paced transcription session.
//
// Audio goes to the adapter; the adapter's results go through a pacing
// scheduler to the sink. Closing the audio input is half-open: results
// already recognized keep being paced until the scheduler closes the sink.
type Handler struct {
	adapter   stt.Adapter
	scheduler *pacing.Scheduler
	meta      models.Meta
	limits    SessionLimits
	clock     clockwork.Clock
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu         sync.RWMutex
	startTime  time.Time
	audioBytes int64
	frames     int
	inputDone  bool
	limitErr   error
}

// NewHandler creates a session handler.
func NewHandler(adapter stt.Adapter, sink pacing.Sink, meta models.Meta, cfg pacing.Config, limits SessionLimits, opts ...Option) *Handler {
	h := &Handler{
		adapter: adapter,
		meta:    meta,
		limits:  limits,
		clock:   clockwork.NewRealClock(),
		log:     logging.WithSession(meta.SessionID, meta.InteractionID, meta.TenantID),
		metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.clock.Now()
	h.scheduler = pacing.New(cfg, adapter, sink,
		pacing.WithClock(h.clock),
		pacing.WithLogger(h.log.With().Str("component", "pacing").Logger()),
	)
	return h
}

// Start starts the adapter and the pacing scheduler.
func (h *Handler) Start(ctx context.Context) error {
	if err := h.scheduler.Start(ctx); err != nil {
		return err
	}
	h.log.Info().Msg("Session started")
	return nil
}

// SendAudio forwards audio bytes to the STT adapter.
// When a session limit is exceeded the audio input is closed, the results
// recognized so far are still paced, and ErrLimitExceeded is returned.
func (h *Handler) SendAudio(ctx context.Context, audio []byte) error {
	h.mu.Lock()
	if h.inputDone {
		h.mu.Unlock()
		return ErrAudioClosed
	}
	h.audioBytes += int64(len(audio))
	h.frames++
	currentBytes := h.audioBytes
	elapsed := h.clock.Since(h.startTime)
	h.mu.Unlock()

	h.metrics.RecordAudioReceived(len(audio))

	if h.limits.MaxAudioBytes > 0 && currentBytes > h.limits.MaxAudioBytes {
		return h.limitExceeded("audio_bytes", fmt.Sprintf("max audio bytes exceeded: %d > %d", currentBytes, h.limits.MaxAudioBytes))
	}
	if h.limits.MaxDuration > 0 && elapsed > h.limits.MaxDuration {
		return h.limitExceeded("duration", fmt.Sprintf("max duration exceeded: %v > %v", elapsed, h.limits.MaxDuration))
	}

	return h.adapter.SendAudio(ctx, audio)
}

func (h *Handler) limitExceeded(limitType, reason string) error {
	h.metrics.RecordLimitExceeded(limitType)
	h.log.Warn().Str("limit", limitType).Str("reason", reason).Msg("Session limit exceeded, closing audio input")

	err := fmt.Errorf("%w: %s", ErrLimitExceeded, reason)
	h.mu.Lock()
	if h.limitErr == nil {
		h.limitErr = err
	}
	h.mu.Unlock()

	if cerr := h.CloseSend(); cerr != nil {
		h.log.Error().Err(cerr).Msg("Failed to close audio input")
	}
	return err
}

// LimitErr returns the first session limit violation, if any.
func (h *Handler) LimitErr() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.limitErr
}

// CloseSend ends the audio input. It is safe to call more than once.
func (h *Handler) CloseSend() error {
	h.mu.Lock()
	if h.inputDone {
		h.mu.Unlock()
		return nil
	}
	h.inputDone = true
	h.mu.Unlock()

	return h.scheduler.Stop()
}

// Wait blocks until every result has been paced and the sink closed, or the
// session failed.
func (h *Handler) Wait() error {
	err := h.scheduler.Wait()
	m := h.Metrics()
	ev := h.log.Info()
	if err != nil {
		ev = h.log.Warn().Err(err)
	}
	ev.Int64("audioBytes", m.AudioBytes).
		Int("frames", m.Frames).
		Dur("duration", m.Duration).
		Str("state", m.State.String()).
		Msg("Session finished")
	return err
}

// Done is closed when the session finished.
func (h *Handler) Done() <-chan struct{} {
	return h.scheduler.Done()
}

// SessionMetrics holds current session usage metrics.
type SessionMetrics struct {
	AudioBytes int64
	Frames     int
	Duration   time.Duration
	State      pacing.State
}

// Metrics returns current session metrics for observability.
func (h *Handler) Metrics() SessionMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return SessionMetrics{
		AudioBytes: h.audioBytes,
		Frames:     h.frames,
		Duration:   h.clock.Since(h.startTime),
		State:      h.scheduler.State(),
	}
}

// Meta returns the session identifiers.
func (h *Handler) Meta() models.Meta {
	return h.meta
}
