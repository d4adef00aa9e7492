package pacing

import "ai-speech-pacing-service/internal/service/stt"

// Sink is the downstream consumer of paced output.
type Sink interface {
	// Result receives every emitted result, whole or cropped, in due order.
	Result(r stt.Result) error

	// Transcript receives the text of final results once every word is due.
	Transcript(text string) error

	// Close signals end of stream after the producer ended and the buffer
	// drained.
	Close() error
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are no-ops.
type SinkFuncs struct {
	OnResult     func(r stt.Result) error
	OnTranscript func(text string) error
	OnClose      func() error
}

// Result calls OnResult.
func (f SinkFuncs) Result(r stt.Result) error {
	if f.OnResult == nil {
		return nil
	}
	return f.OnResult(r)
}

// Transcript calls OnTranscript.
func (f SinkFuncs) Transcript(text string) error {
	if f.OnTranscript == nil {
		return nil
	}
	return f.OnTranscript(text)
}

// Close calls OnClose.
func (f SinkFuncs) Close() error {
	if f.OnClose == nil {
		return nil
	}
	return f.OnClose()
}
