// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_speech_pacing"

// Result kinds used as the "kind" label of pacing metrics.
const (
	KindInterim = "interim"
	KindFinal   = "final"
	KindCropped = "cropped"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsSuccess prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// Pacing metrics
	ResultsIngested      *prometheus.CounterVec
	ResultsRejected      *prometheus.CounterVec
	InterimSuperseded    prometheus.Counter
	ResultsEmitted       *prometheus.CounterVec
	TranscriptsForwarded prometheus.Counter
	SchedulerTicks       prometheus.Counter
	TimersArmed          prometheus.Counter
	EmitLag              prometheus.Histogram
	SinkErrors           *prometheus.CounterVec
	PacingClosed         prometheus.Counter
	ProducerErrors       prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTErrors         *prometheus.CounterVec
	STTResultsSkipped *prometheus.CounterVec

	// Backpressure metrics
	SegmentLimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Stream metrics
		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of gRPC streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active gRPC streams",
		}),
		StreamsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_success_total",
			Help:      "Total number of successfully completed streams",
		}),
		StreamsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of failed streams",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of gRPC streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		// Audio metrics
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		// Pacing metrics
		ResultsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_ingested_total",
			Help:      "Total number of recognizer results buffered for pacing",
		}, []string{"kind"}),
		ResultsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_rejected_total",
			Help:      "Total number of recognizer results rejected on ingestion",
		}, []string{"reason"}),
		InterimSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interim_superseded_total",
			Help:      "Total number of buffered interim results discarded by a later result",
		}),
		ResultsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_emitted_total",
			Help:      "Total number of paced results emitted downstream, by interim, final or cropped final",
		}, []string{"kind"}),
		TranscriptsForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_forwarded_total",
			Help:      "Total number of final transcripts forwarded once fully due",
		}),
		SchedulerTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of scheduler ticks",
		}),
		TimersArmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timers_armed_total",
			Help:      "Total number of wake timers armed",
		}),
		EmitLag: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "emit_lag_seconds",
			Help:      "Time between a word becoming due and its emission",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		SinkErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Total number of downstream sink errors",
		}, []string{"operation"}),
		PacingClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pacing_closed_total",
			Help:      "Total number of paced streams drained and closed",
		}),
		ProducerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "producer_errors_total",
			Help:      "Total number of streams aborted by a producer failure",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// STT metrics
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		STTResultsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_results_skipped_total",
			Help:      "Total number of provider results dropped before pacing because they carry no word offsets",
		}, []string{"provider"}),

		// Backpressure metrics
		SegmentLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_limit_exceeded_total",
			Help:      "Total number of times session limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if success {
		m.StreamsSuccess.Inc()
	} else {
		m.StreamsFailed.Inc()
	}
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordResultIngested records a result entering the pacing buffer.
func (m *Metrics) RecordResultIngested(final bool) {
	m.ResultsIngested.WithLabelValues(kindLabel(final)).Inc()
}

// RecordResultRejected records a result refused by the pacing buffer.
func (m *Metrics) RecordResultRejected(reason string) {
	m.ResultsRejected.WithLabelValues(reason).Inc()
}

// RecordInterimSuperseded records interim results discarded by supersession.
func (m *Metrics) RecordInterimSuperseded(n int) {
	m.InterimSuperseded.Add(float64(n))
}

// RecordResultEmitted records a paced emission of the given kind and how late
// it was.
func (m *Metrics) RecordResultEmitted(kind string, lagSeconds float64) {
	m.ResultsEmitted.WithLabelValues(kind).Inc()
	m.EmitLag.Observe(lagSeconds)
}

// RecordTranscriptForwarded records a final transcript sent downstream.
func (m *Metrics) RecordTranscriptForwarded() {
	m.TranscriptsForwarded.Inc()
}

// RecordTick records a scheduler tick.
func (m *Metrics) RecordTick() {
	m.SchedulerTicks.Inc()
}

// RecordTimerArmed records a wake timer being armed.
func (m *Metrics) RecordTimerArmed() {
	m.TimersArmed.Inc()
}

// RecordSinkError records a failed sink operation.
func (m *Metrics) RecordSinkError(operation string) {
	m.SinkErrors.WithLabelValues(operation).Inc()
}

// RecordPacingClosed records a paced stream closing after draining.
func (m *Metrics) RecordPacingClosed() {
	m.PacingClosed.Inc()
}

// RecordProducerError records a stream aborted by its producer.
func (m *Metrics) RecordProducerError() {
	m.ProducerErrors.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordSTTResultSkipped records a provider result without word offsets.
func (m *Metrics) RecordSTTResultSkipped(provider string) {
	m.STTResultsSkipped.WithLabelValues(provider).Inc()
}

// RecordLimitExceeded records when a session limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.SegmentLimitExceeded.WithLabelValues(limitType).Inc()
}

func kindLabel(final bool) string {
	if final {
		return KindFinal
	}
	return KindInterim
}
