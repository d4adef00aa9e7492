// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables win over the file; invalid
// values fall back to the previous value.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"ai-speech-pacing-service/internal/service/pacing"
)

// Config is the complete service configuration.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	STT           STTConfig           `yaml:"stt"`
	Pacing        PacingConfig        `yaml:"pacing"`
	SegmentLimits SegmentLimitsConfig `yaml:"segmentLimits"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal string `yaml:"principal"`
	GRPCPort  string `yaml:"grpcPort"`
	HTTPAddr  string `yaml:"httpAddr"`
}

type STTConfig struct {
	Provider       string `yaml:"provider"` // mock, google or deepgram
	LanguageCode   string `yaml:"languageCode"`
	SampleRateHz   int    `yaml:"sampleRateHz"`
	InterimResults bool   `yaml:"interimResults"`
	AudioEncoding  string `yaml:"audioEncoding"`
	Model          string `yaml:"model"`
	DeepgramAPIKey string `yaml:"-"`
}

type PacingConfig struct {
	EmitAt     string        `yaml:"emitAt"`
	Delay      time.Duration `yaml:"delay"`
	ObjectMode bool          `yaml:"objectMode"`
	MaxDrain   int           `yaml:"maxDrain"`
}

type SegmentLimitsConfig struct {
	MaxAudioBytes int64         `yaml:"maxAudioBytes"`
	MaxDuration   time.Duration `yaml:"maxDuration"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicResults string   `yaml:"topicResults"`
	TopicFinal   string   `yaml:"topicFinal"`
	Principal    string   `yaml:"principal"`
}

type ObservabilityConfig struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal: "svc-speech-pacing",
			GRPCPort:  "50051",
			HTTPAddr:  ":9090",
		},
		STT: STTConfig{
			Provider:       "mock",
			LanguageCode:   "en-US",
			SampleRateHz:   8000,
			InterimResults: true,
			AudioEncoding:  "LINEAR16",
			Model:          "nova-3",
		},
		Pacing: PacingConfig{
			EmitAt:   "start",
			MaxDrain: 64,
		},
		SegmentLimits: SegmentLimitsConfig{
			MaxAudioBytes: 5 * 1024 * 1024,
			MaxDuration:   5 * time.Minute,
		},
		Kafka: KafkaConfig{
			TopicResults: "interaction.transcript.paced",
			TopicFinal:   "interaction.transcript.final",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and the environment.
func Load() *Config {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring config file")
		}
	}
	cfg.ApplyEnv()
	return cfg
}

// ApplyFile overlays the YAML file at path. Keys missing from the file keep
// their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables.
func (c *Config) ApplyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)
	c.Service.HTTPAddr = envOrDefault("HTTP_ADDR", c.Service.HTTPAddr)

	c.STT.Provider = envOrDefault("STT_PROVIDER", c.STT.Provider)
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", c.STT.SampleRateHz)
	c.STT.InterimResults = envOrDefaultBool("STT_INTERIM_RESULTS", c.STT.InterimResults)
	c.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", c.STT.AudioEncoding)
	c.STT.Model = envOrDefault("STT_MODEL", c.STT.Model)
	c.STT.DeepgramAPIKey = envOrDefault("DEEPGRAM_API_KEY", c.STT.DeepgramAPIKey)

	c.Pacing.EmitAt = envOrDefault("PACING_EMIT_AT", c.Pacing.EmitAt)
	c.Pacing.Delay = envOrDefaultDelay("PACING_DELAY", c.Pacing.Delay)
	c.Pacing.ObjectMode = envOrDefaultBool("PACING_OBJECT_MODE", c.Pacing.ObjectMode)
	c.Pacing.MaxDrain = envOrDefaultInt("PACING_MAX_DRAIN", c.Pacing.MaxDrain)

	c.SegmentLimits.MaxAudioBytes = envOrDefaultInt64("SEGMENT_MAX_AUDIO_BYTES", c.SegmentLimits.MaxAudioBytes)
	c.SegmentLimits.MaxDuration = envOrDefaultDuration("SEGMENT_MAX_DURATION", c.SegmentLimits.MaxDuration)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.TopicResults = envOrDefault("KAFKA_TOPIC_RESULTS", c.Kafka.TopicResults)
	c.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", c.Kafka.TopicFinal)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.STT.Provider {
	case "mock", "google":
	case "deepgram":
		if c.STT.DeepgramAPIKey == "" {
			errs = append(errs, errors.New("config: DEEPGRAM_API_KEY is required for the deepgram provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STT provider %q", c.STT.Provider))
	}
	if _, err := pacing.ParseEmitAt(c.Pacing.EmitAt); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("config: kafka enabled without brokers"))
	}
	return errors.Join(errs...)
}

// PacingOptions returns the scheduler options.
func (c *Config) PacingOptions() (pacing.Config, error) {
	emitAt, err := pacing.ParseEmitAt(c.Pacing.EmitAt)
	if err != nil {
		return pacing.Config{}, err
	}
	return pacing.Config{
		EmitAt:   emitAt,
		Delay:    c.Pacing.Delay,
		MaxDrain: c.Pacing.MaxDrain,
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultDelay accepts a duration ("-500ms") or plain seconds ("-0.5").
func envOrDefaultDelay(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := ParseDelay(v); err == nil {
			return d
		}
	}
	return def
}

// ParseDelay parses a pacing delay given as a duration or as seconds.
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid delay %q", s)
	}
	ns := secs * float64(time.Second)
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if math.IsNaN(ns) || ns >= float64(math.MaxInt64) || ns < float64(math.MinInt64) {
		return 0, fmt.Errorf("config: delay %q out of range", s)
	}
	return time.Duration(ns), nil
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
