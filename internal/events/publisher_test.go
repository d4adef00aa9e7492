package events

import (
	"context"
	"testing"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerResults != nil || p.writerFinal != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicResults: "test.results",
		TopicFinal:   "test.final",
	})
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerResults.Topic != "test.results" {
		t.Errorf("expected results writer topic 'test.results', got %s", p.writerResults.Topic)
	}
	if p.writerFinal.Topic != "test.final" {
		t.Errorf("expected final writer topic 'test.final', got %s", p.writerFinal.Topic)
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicResults: "test.results",
		TopicFinal:   "test.final",
		Principal:    "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicResults != "test.results" {
		t.Errorf("expected topic results 'test.results', got %s", p.topicResults)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected topic final 'test.final', got %s", p.topicFinal)
	}
}

type testEvent struct {
	EventType     string `json:"eventType"`
	InteractionID string `json:"interactionId"`
	Text          string `json:"text"`
}

func TestPublisher_Disabled_Publishes(t *testing.T) {
	p := New(&Config{Enabled: false, TopicResults: "test.results", TopicFinal: "test.final", Principal: "test-svc"})
	ctx := context.Background()
	event := testEvent{EventType: "transcript.paced", InteractionID: "int-123", Text: "hello world"}

	if err := p.PublishResult(ctx, "int-123", event); err != nil {
		t.Errorf("PublishResult: expected no error, got %v", err)
	}
	if err := p.PublishTranscript(ctx, "int-123", event); err != nil {
		t.Errorf("PublishTranscript: expected no error, got %v", err)
	}
	if err := p.PublishClosed(ctx, "int-123", event); err != nil {
		t.Errorf("PublishClosed: expected no error, got %v", err)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Channels cannot be marshalled
	event := make(chan int)
	if err := p.PublishResult(context.Background(), "test-key", event); err == nil {
		t.Error("expected error for unmarshalable result event")
	}
	if err := p.PublishTranscript(context.Background(), "test-key", event); err == nil {
		t.Error("expected error for unmarshalable transcript event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisher(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
