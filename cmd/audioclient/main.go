package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	grpcapi "ai-speech-pacing-service/internal/api/grpc"
	"ai-speech-pacing-service/internal/models"
	"ai-speech-pacing-service/internal/observability/logging"
	"ai-speech-pacing-service/internal/service/audio"
)

// Stream audio in 100ms chunks to simulate real-time streaming.
const chunkInterval = 100 * time.Millisecond

func main() {
	audioFile := flag.String("audio", "testdata/sample-8khz.wav", "Path to WAV file (16-bit PCM)")
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	interactionID := flag.String("interaction", "test-audio-"+time.Now().Format("150405"), "Interaction ID")
	tenantID := flag.String("tenant", "tenant-demo", "Tenant ID")
	emitAt := flag.String("emit-at", "", "Emit words at their start or end offset (server default if empty)")
	delayMs := flag.Int("delay-ms", 0, "Pacing delay in milliseconds, may be negative")
	objectMode := flag.Bool("object-mode", false, "Print every paced result instead of final transcripts only")
	realtime := flag.Bool("realtime", true, "Send audio at playback speed")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio file")
	}
	format, pcm, err := audio.ReadWAV(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read WAV file")
	}
	log.Info().
		Uint32("sampleRate", format.SampleRate).
		Uint16("channels", format.NumChannels).
		Dur("duration", format.Duration(len(pcm))).
		Msg("WAV file loaded")

	conn, err := grpc.NewClient(*serverAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	md := metadata.Pairs(
		grpcapi.MetadataInteractionID, *interactionID,
		grpcapi.MetadataTenantID, *tenantID,
		grpcapi.MetadataDelayMs, strconv.Itoa(*delayMs),
		grpcapi.MetadataObjectMode, strconv.FormatBool(*objectMode),
	)
	if *emitAt != "" {
		md.Set(grpcapi.MetadataEmitAt, *emitAt)
	}

	// Leave room for the paced tail after the audio ends.
	timeout := format.Duration(len(pcm)) + time.Minute + time.Duration(max(*delayMs, 0))*time.Millisecond
	ctx, cancel := context.WithTimeout(metadata.NewOutgoingContext(context.Background(), md), timeout)
	defer cancel()

	stream, err := grpcapi.NewClient(conn).StreamAudio(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create stream")
	}

	go func() {
		if err := send(stream, pcm, format, *realtime); err != nil {
			log.Error().Err(err).Msg("Failed to stream audio")
		}
	}()

	count, err := receive(stream)
	if err != nil {
		log.Fatal().Err(err).Int("events", count).Msg("Stream failed")
	}
	log.Info().Int("events", count).Str("interactionId", *interactionID).Msg("Stream completed")
}

func send(stream grpc.BidiStreamingClient[wrapperspb.BytesValue, structpb.Struct], pcm []byte, format audio.WAVFormat, realtime bool) error {
	chunkSize := format.BytesPerSecond() * int(chunkInterval) / int(time.Second)
	chunkSize -= chunkSize % 2
	if chunkSize <= 0 {
		chunkSize = 1600
	}

	start := time.Now()
	chunks := 0
	for off := 0; off < len(pcm); off += chunkSize {
		end := min(off+chunkSize, len(pcm))
		if err := stream.Send(wrapperspb.Bytes(pcm[off:end])); err != nil {
			return err
		}
		chunks++
		if realtime {
			time.Sleep(chunkInterval)
		}
	}
	log.Info().Int("chunks", chunks).Int("bytes", len(pcm)).Dur("elapsed", time.Since(start)).
		Msg("Finished streaming, waiting for paced transcripts")
	return stream.CloseSend()
}

func receive(stream grpc.BidiStreamingClient[wrapperspb.BytesValue, structpb.Struct]) (int, error) {
	count := 0
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		count++

		fields := ev.GetFields()
		switch fields["eventType"].GetStringValue() {
		case models.EventTypePaced:
			line, _ := protojson.Marshal(ev)
			fmt.Println(string(line))
		case models.EventTypeFinal:
			fmt.Printf("[%s] %s\n", fields["segmentId"].GetStringValue(), fields["text"].GetStringValue())
		case models.EventTypeClosed:
			log.Info().Float64("segments", fields["segments"].GetNumberValue()).Msg("Server closed the paced stream")
		}
	}
}
