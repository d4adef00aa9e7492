package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-speech-pacing-service/internal/observability/metrics"
)

var testMetrics = metrics.DefaultMetrics

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestStreamServerInterceptor_RecordsOutcome(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		success bool
	}{
		{"ok", nil, true},
		{"client cancel", status.Error(codes.Canceled, "gone"), true},
		{"limit", status.Error(codes.ResourceExhausted, "too much audio"), false},
		{"plain error", errors.New("boom"), false},
	}

	interceptor := StreamServerInterceptor(testMetrics)
	info := &grpc.StreamServerInfo{FullMethod: "/ai.speech.pacing.PacedTranscriptionService/StreamAudio"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			okBefore := value(t, testMetrics.StreamsSuccess)
			failBefore := value(t, testMetrics.StreamsFailed)
			activeBefore := value(t, testMetrics.StreamsActive)

			err := interceptor(nil, nil, info, func(any, grpc.ServerStream) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Errorf("expected handler error to pass through, got %v", err)
			}

			okDelta := value(t, testMetrics.StreamsSuccess) - okBefore
			failDelta := value(t, testMetrics.StreamsFailed) - failBefore
			if tt.success && (okDelta != 1 || failDelta != 0) {
				t.Errorf("expected success recorded, got ok=%v failed=%v", okDelta, failDelta)
			}
			if !tt.success && (okDelta != 0 || failDelta != 1) {
				t.Errorf("expected failure recorded, got ok=%v failed=%v", okDelta, failDelta)
			}
			if active := value(t, testMetrics.StreamsActive); active != activeBefore {
				t.Errorf("expected active streams back to %v, got %v", activeBefore, active)
			}
		})
	}
}

func TestUnaryServerInterceptor_PassesThrough(t *testing.T) {
	interceptor := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := interceptor(context.Background(), "req", info, func(context.Context, any) (any, error) {
		return "resp", nil
	})
	if err != nil || resp != "resp" {
		t.Errorf("expected resp, got %v %v", resp, err)
	}
}

func TestStreamLevel(t *testing.T) {
	tests := map[codes.Code]zerolog.Level{
		codes.OK:                zerolog.InfoLevel,
		codes.Canceled:          zerolog.InfoLevel,
		codes.InvalidArgument:   zerolog.WarnLevel,
		codes.ResourceExhausted: zerolog.WarnLevel,
		codes.Internal:          zerolog.ErrorLevel,
		codes.Unavailable:       zerolog.ErrorLevel,
	}
	for code, want := range tests {
		if got := streamLevel(code); got != want {
			t.Errorf("streamLevel(%v) = %v, want %v", code, got, want)
		}
	}
}
