package app

import (
	"context"
	"fmt"
	"strings"

	"ai-speech-pacing-service/internal/config"
	"ai-speech-pacing-service/internal/service/stt"
	"ai-speech-pacing-service/internal/service/stt/deepgram"
	"ai-speech-pacing-service/internal/service/stt/google"
	"ai-speech-pacing-service/internal/service/stt/mock"
)

// AdapterFactory creates one STT adapter per stream.
type AdapterFactory func(ctx context.Context) (stt.Adapter, error)

// NewAdapterFactory returns the factory for the configured provider.
func NewAdapterFactory(cfg config.STTConfig) (AdapterFactory, error) {
	switch cfg.Provider {
	case "mock":
		mc := mock.DefaultConfig()
		mc.SampleRateHz = cfg.SampleRateHz
		return func(context.Context) (stt.Adapter, error) {
			return mock.New(mc), nil
		}, nil

	case "google":
		gc := google.Config{
			LanguageCode:   cfg.LanguageCode,
			SampleRateHz:   int32(cfg.SampleRateHz),
			InterimResults: cfg.InterimResults,
			AudioEncoding:  cfg.AudioEncoding,
		}
		return func(ctx context.Context) (stt.Adapter, error) {
			return google.New(ctx, gc)
		}, nil

	case "deepgram":
		dc := deepgram.DefaultConfig()
		dc.APIKey = cfg.DeepgramAPIKey
		dc.Model = cfg.Model
		dc.LanguageCode = cfg.LanguageCode
		dc.SampleRateHz = cfg.SampleRateHz
		dc.Encoding = strings.ToLower(cfg.AudioEncoding)
		dc.InterimResults = cfg.InterimResults
		return func(context.Context) (stt.Adapter, error) {
			return deepgram.New(dc)
		}, nil

	default:
		return nil, fmt.Errorf("app: unknown STT provider %q", cfg.Provider)
	}
}
