package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWriter_LevelFallback(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := []struct {
		level    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			InitWriter(Config{Level: tt.level, Format: "json"}, &bytes.Buffer{})
			if got := zerolog.GlobalLevel(); got != tt.expected {
				t.Errorf("level %q: expected %v, got %v", tt.level, tt.expected, got)
			}
		})
	}
}

func TestWithSession_AddsFields(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	saved := log.Logger
	defer func() { log.Logger = saved }()

	var buf bytes.Buffer
	InitWriter(DefaultConfig(), &buf)

	l := WithSession("sess-1", "int-1", "tenant-1")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{
		"sessionId":     "sess-1",
		"interactionId": "int-1",
		"tenantId":      "tenant-1",
		"message":       "hello",
	} {
		if entry[key] != want {
			t.Errorf("expected %s=%q, got %v", key, want, entry[key])
		}
	}
}
