// Command replay paces a recorded JSON Lines session to stdout, as it would
// have been delivered live.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ai-speech-pacing-service/internal/config"
	"ai-speech-pacing-service/internal/models"
	"ai-speech-pacing-service/internal/observability/logging"
	"ai-speech-pacing-service/internal/service/pacing"
	"ai-speech-pacing-service/internal/service/sink"
	"ai-speech-pacing-service/internal/service/stt/replay"
)

func main() {
	cfg := config.Load()

	file := flag.String("file", "-", "Recording to replay (JSON Lines, - for stdin)")
	emitAt := flag.String("emit-at", cfg.Pacing.EmitAt, "Emit words at their start or end offset")
	delay := flag.String("delay", cfg.Pacing.Delay.String(), "Pacing delay as a duration or seconds, may be negative")
	objectMode := flag.Bool("object-mode", cfg.Pacing.ObjectMode, "Write every paced result as JSON instead of final transcripts")
	interactionID := flag.String("interaction", "replay", "Interaction ID carried in object mode")
	flag.Parse()

	// Logs go to stderr so stdout carries only paced output.
	logging.InitWriter(logging.Config{Level: cfg.Observability.LogLevel, Format: "console"}, os.Stderr)

	var err error
	cfg.Pacing.EmitAt = *emitAt
	cfg.Pacing.ObjectMode = *objectMode
	if cfg.Pacing.Delay, err = config.ParseDelay(*delay); err != nil {
		log.Fatal().Err(err).Msg("Invalid delay")
	}
	opts, err := cfg.PacingOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pacing options")
	}

	records, err := load(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to load recording")
	}
	log.Info().Int("records", len(records)).Str("emitAt", opts.EmitAt.String()).Dur("delay", opts.Delay).Msg("Replaying")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meta := models.Meta{SessionID: uuid.NewString(), InteractionID: *interactionID}
	out := sink.NewWriter(nopCloser{os.Stdout}, meta, cfg.Pacing.ObjectMode)
	s := pacing.New(opts, replay.New(records, nil), out)

	if err := s.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Replay failed")
	}
}

func load(path string) ([]replay.Record, error) {
	if path == "-" {
		return replay.Load(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return replay.Load(f)
}

// nopCloser keeps stdout open when the sink closes.
type nopCloser struct{ io.Writer }
