package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-speech-pacing-service/internal/observability/metrics"
)

// UnaryServerInterceptor logs unary calls. Health checks are logged at debug.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		ev := log.Debug()
		if code != codes.OK {
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")

		return resp, err
	}
}

// StreamServerInterceptor records stream metrics and logs every finished
// stream. A client cancel is not counted as a failure.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		m.RecordStreamStart()

		err := handler(srv, ss)

		duration := time.Since(start)
		code := status.Code(err)
		success := code == codes.OK || code == codes.Canceled
		m.RecordStreamEnd(success, duration.Seconds())

		log.WithLevel(streamLevel(code)).
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", duration).
			Bool("success", success).
			Msg("gRPC stream completed")

		return err
	}
}

func streamLevel(code codes.Code) zerolog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return zerolog.InfoLevel
	case codes.InvalidArgument, codes.ResourceExhausted:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
