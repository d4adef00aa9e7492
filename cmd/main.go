package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "ai-speech-pacing-service/internal/api/grpc"
	"ai-speech-pacing-service/internal/app"
	"ai-speech-pacing-service/internal/config"
	apphttp "ai-speech-pacing-service/internal/http"
	"ai-speech-pacing-service/internal/observability"
	"ai-speech-pacing-service/internal/observability/metrics"
	"ai-speech-pacing-service/internal/service/audio"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	pacingCfg, err := cfg.PacingOptions()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pacing configuration")
	}
	newAdapter, err := app.NewAdapterFactory(cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid STT configuration")
	}

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Register application services
	grpcapi.Register(server, grpcapi.NewServer(grpcapi.Options{
		NewAdapter:     newAdapter,
		Provider:       cfg.STT.Provider,
		Publisher:      application.Publisher,
		PublishTimeout: 5 * time.Second,
		Validator:      application.Validator,
		Pacing:         pacingCfg,
		ObjectMode:     cfg.Pacing.ObjectMode,
		Limits: audio.SessionLimits{
			MaxAudioBytes: cfg.SegmentLimits.MaxAudioBytes,
			MaxDuration:   cfg.SegmentLimits.MaxDuration,
		},
	}))

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	httpServer := observability.NewServer(cfg.Service.HTTPAddr, apphttp.NewRouter(application, application.Validator))
	httpServer.Start()

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Application start failed")
	}

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("Speech Pacing Service started")
		if err := server.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down gRPC server")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	server.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	application.Shutdown()
}
