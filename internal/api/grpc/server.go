// Package grpcapi exposes paced transcription over a bidirectional gRPC
// stream.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"ai-speech-pacing-service/internal/models"
	"ai-speech-pacing-service/internal/observability/logging"
	"ai-speech-pacing-service/internal/observability/metrics"
	"ai-speech-pacing-service/internal/schema"
	"ai-speech-pacing-service/internal/service/audio"
	"ai-speech-pacing-service/internal/service/pacing"
	"ai-speech-pacing-service/internal/service/sink"
	"ai-speech-pacing-service/internal/service/stt"
)

// MetadataSessionID is the response header carrying the generated session ID.
const MetadataSessionID = "session-id"

// Options configures the gRPC server.
type Options struct {
	// NewAdapter creates the STT adapter for one stream.
	NewAdapter func(ctx context.Context) (stt.Adapter, error)
	Provider   string

	// Publisher additionally receives every event. Nil disables it.
	Publisher      sink.EventPublisher
	PublishTimeout time.Duration
	Validator      *schema.Validator

	// Defaults, overridable per stream through metadata.
	Pacing     pacing.Config
	ObjectMode bool

	Limits audio.SessionLimits
}

// Server implements PacedTranscriptionService.
type Server struct {
	opts    Options
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

// NewServer creates the service implementation.
func NewServer(opts Options) *Server {
	if opts.Validator == nil {
		opts.Validator = schema.New()
	}
	return &Server{
		opts:    opts,
		tracer:  otel.Tracer("ai-speech-pacing-service/grpc"),
		metrics: metrics.DefaultMetrics,
	}
}

// Register registers s on g.
func Register(g *grpc.Server, s *Server) {
	RegisterPacedTranscriptionServiceServer(g, s)
}

type streamRequest struct {
	meta       models.Meta
	pacing     pacing.Config
	objectMode bool
}

// StreamAudio paces recognizer output for the audio received on stream.
// Audio frames arrive as BytesValue messages; a client half-close ends the
// audio and the stream finishes once every recognized word was sent.
func (s *Server) StreamAudio(stream AudioStream) error {
	req, err := s.parseRequest(stream.Context())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, span := s.tracer.Start(stream.Context(), "PacedTranscriptionService/StreamAudio",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("pacing.session_id", req.meta.SessionID),
			attribute.String("pacing.interaction_id", req.meta.InteractionID),
			attribute.String("pacing.tenant_id", req.meta.TenantID),
			attribute.String("pacing.emit_at", req.pacing.EmitAt.String()),
			attribute.Int64("pacing.delay_ms", req.pacing.Delay.Milliseconds()),
			attribute.Bool("pacing.object_mode", req.objectMode),
			attribute.String("stt.provider", s.opts.Provider),
		))
	defer span.End()

	logger := logging.WithStream(req.meta.SessionID, req.meta.InteractionID, req.meta.TenantID, s.opts.Provider)

	if err := s.serve(ctx, stream, req, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Server) serve(ctx context.Context, stream AudioStream, req streamRequest, logger zerolog.Logger) error {
	adapter, err := s.opts.NewAdapter(ctx)
	if err != nil {
		s.metrics.RecordSTTError(s.opts.Provider, "create")
		return status.Errorf(codes.Unavailable, "stt adapter: %v", err)
	}

	if err := stream.SendHeader(metadata.Pairs(MetadataSessionID, req.meta.SessionID)); err != nil {
		logger.Warn().Err(err).Msg("Failed to send response header")
	}

	h := audio.NewHandler(adapter, s.sinkFor(ctx, stream, req), req.meta, req.pacing, s.opts.Limits,
		audio.WithLogger(logger))
	if err := h.Start(ctx); err != nil {
		s.metrics.RecordSTTError(s.opts.Provider, "start")
		// The adapter owns provider connections that only Close releases.
		if cerr := adapter.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to close STT adapter after start failure")
		}
		return status.Errorf(codes.Unavailable, "start session: %v", err)
	}

	recvDone := make(chan error, 1)
	go func() { recvDone <- s.receive(ctx, stream, h, logger) }()

	var recvErr error
	select {
	case recvErr = <-recvDone:
	case <-h.Done():
		select {
		case recvErr = <-recvDone:
		default:
		}
	}

	if err := h.Wait(); err != nil {
		return toStatus(err)
	}
	if err := h.LimitErr(); err != nil {
		return toStatus(err)
	}
	return toStatus(recvErr)
}

// receive forwards audio frames until the client half-closes, a session
// limit is hit or the stream fails. The audio input is closed in every case.
func (s *Server) receive(ctx context.Context, stream AudioStream, h *audio.Handler, logger zerolog.Logger) error {
	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			logger.Debug().Msg("Client closed audio stream")
			return h.CloseSend()
		}
		if err != nil {
			_ = h.CloseSend()
			return err
		}

		if err := h.SendAudio(ctx, frame.GetValue()); err != nil {
			if !errors.Is(err, audio.ErrLimitExceeded) {
				s.metrics.RecordSTTError(s.opts.Provider, "send")
				logger.Error().Err(err).Msg("Failed to forward audio")
				_ = h.CloseSend()
			}
			return err
		}
	}
}

func (s *Server) sinkFor(ctx context.Context, stream AudioStream, req streamRequest) pacing.Sink {
	out := sink.NewPublisher(ctx, &streamPublisher{stream: stream, objectMode: req.objectMode}, s.opts.Validator, req.meta, 0)
	if s.opts.Publisher == nil {
		return out
	}
	return sink.Multi{out, sink.NewPublisher(ctx, s.opts.Publisher, s.opts.Validator, req.meta, s.opts.PublishTimeout)}
}

// maxDelayMs is the largest delay-ms that still fits a time.Duration.
const maxDelayMs = math.MaxInt64 / int64(time.Millisecond)

func (s *Server) parseRequest(ctx context.Context) (streamRequest, error) {
	req := streamRequest{
		pacing:     s.opts.Pacing,
		objectMode: s.opts.ObjectMode,
	}
	req.meta.SessionID = uuid.NewString()

	md, _ := metadata.FromIncomingContext(ctx)
	req.meta.InteractionID = first(md, MetadataInteractionID)
	if req.meta.InteractionID == "" {
		req.meta.InteractionID = req.meta.SessionID
	}
	req.meta.TenantID = first(md, MetadataTenantID)

	if v := first(md, MetadataEmitAt); v != "" {
		emitAt, err := pacing.ParseEmitAt(v)
		if err != nil {
			return req, err
		}
		req.pacing.EmitAt = emitAt
	}
	if v := first(md, MetadataDelayMs); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms > maxDelayMs || ms < -maxDelayMs {
			return req, fmt.Errorf("invalid %s %q", MetadataDelayMs, v)
		}
		req.pacing.Delay = time.Duration(ms) * time.Millisecond
	}
	if v := first(md, MetadataObjectMode); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid %s %q", MetadataObjectMode, v)
		}
		req.objectMode = on
	}
	return req, nil
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, audio.ErrLimitExceeded):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, pacing.ErrStalled),
		errors.Is(err, pacing.ErrNoTimestamps),
		errors.Is(err, pacing.ErrUnorderedTimestamps):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}

// streamPublisher delivers events to the gRPC client as Struct messages.
// Paced results are only sent in object mode.
type streamPublisher struct {
	stream     AudioStream
	objectMode bool
}

func (p *streamPublisher) PublishResult(_ context.Context, _ string, event any) error {
	if !p.objectMode {
		return nil
	}
	return p.send(event)
}

func (p *streamPublisher) PublishTranscript(_ context.Context, _ string, event any) error {
	return p.send(event)
}

func (p *streamPublisher) PublishClosed(_ context.Context, _ string, event any) error {
	return p.send(event)
}

func (p *streamPublisher) send(event any) error {
	msg, err := toStruct(event)
	if err != nil {
		return err
	}
	return p.stream.Send(msg)
}

func toStruct(event any) (*structpb.Struct, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return structpb.NewStruct(fields)
}
