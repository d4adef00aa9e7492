package app

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ai-speech-pacing-service/internal/config"
	"ai-speech-pacing-service/internal/events"
	"ai-speech-pacing-service/internal/observability/logging"
	"ai-speech-pacing-service/internal/schema"
)

const serviceName = "ai-speech-pacing-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Validator   *schema.Validator
	Publisher   *events.Publisher

	ready atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) *Application {
	a := &Application{
		Cfg:       cfg,
		Validator: schema.New(),
	}
	a.setupLogger()

	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicResults: cfg.Kafka.TopicResults,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("emitAt", cfg.Pacing.EmitAt).
		Dur("delay", cfg.Pacing.Delay).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Msg("AI Speech Pacing service application created")
	return a
}

// setupLogger configures the global zerolog logger and the application logger.
// ZEROLOG_LOG_LEVEL overrides the configured level; ENV=dev forces console
// output.
func (a *Application) setupLogger() {
	lc := logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	}
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		lc.Level = strings.ToLower(envLevel)
	}
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)

	a.Logger = log.With().
		Str("service", serviceName).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", lc.Format).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("AI Speech Pacing service starting")

	return nil
}

// Ready reports whether the service accepts new streams.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	if err := a.Publisher.Close(); err != nil {
		shutdownLogger.Error().Err(err).Msg("Failed to close event publisher")
	}
	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("AI Speech Pacing service shutting down")
}
