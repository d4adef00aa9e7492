package sink

import (
	"errors"

	"ai-speech-pacing-service/internal/service/pacing"
	"ai-speech-pacing-service/internal/service/stt"
)

// Multi fans paced output out to several sinks. Every sink is called even if
// an earlier one fails; the errors are joined.
type Multi []pacing.Sink

// Result passes r to every sink.
func (m Multi) Result(r stt.Result) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Result(r))
	}
	return errors.Join(errs...)
}

// Transcript passes text to every sink.
func (m Multi) Transcript(text string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Transcript(text))
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
