// Package mock provides a mock STT adapter for testing without cloud credentials.
// It simulates a streaming recognizer: words are "heard" as audio arrives,
// interim results grow word by word, and exactly one final result closes
// each utterance. Word offsets are derived from the amount of audio received.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"ai-speech-pacing-service/internal/service/stt"
)

// SimulatedUtterance is one scripted utterance.
type SimulatedUtterance struct {
	Text string
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{Text: "I want to cancel my subscription"},
	{Text: "Yes please go ahead"},
	{Text: "Can you help me with my account"},
	{Text: "I've been waiting for over an hour"},
	{Text: "Thank you very much"},
}

// Config controls the simulated timing.
type Config struct {
	SampleRateHz int           // LINEAR16 mono sample rate of incoming audio
	WordDuration time.Duration // spoken length of every word
	Pause        time.Duration // silence between utterances
}

// DefaultConfig returns timing that roughly matches conversational speech.
func DefaultConfig() Config {
	return Config{
		SampleRateHz: 8000,
		WordDuration: 300 * time.Millisecond,
		Pause:        700 * time.Millisecond,
	}
}

// Adapter implements stt.Adapter with scripted responses.
type Adapter struct {
	mu  sync.Mutex
	cb  stt.Callback
	cfg Config

	heard     time.Duration // audio received so far
	next      int           // position in DefaultUtterances
	words     []stt.WordTiming
	announced int // words of the current utterance sent as interim
	index     int // result index of the current utterance
	closed    bool
}

// utteranceCounter makes consecutive sessions start on different utterances.
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a new mock STT adapter.
func New(cfg Config) *Adapter {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = DefaultConfig().SampleRateHz
	}
	if cfg.WordDuration <= 0 {
		cfg.WordDuration = DefaultConfig().WordDuration
	}

	counterMu.Lock()
	start := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	a := &Adapter{cfg: cfg, next: start}
	a.words = a.script(0)
	return a
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio advances the simulated audio clock by the duration of audio and
// reports every word that has now been heard.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	a.heard += a.duration(len(audio))
	for {
		n := a.heardWords()
		if n == len(a.words) {
			a.cb.OnResult(a.result(a.words, true))
			a.startNext()
			continue
		}
		if n > a.announced {
			a.announced = n
			a.cb.OnResult(a.result(a.words[:n], false))
		}
		return nil
	}
}

// Close ends the mock session. Words heard so far are finalized, then the
// end of the stream is signalled.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.cb == nil {
		return nil
	}

	if n := a.heardWords(); n > 0 {
		a.cb.OnResult(a.result(a.words[:n], true))
	}
	a.cb.OnEnd()
	return nil
}

// duration converts LINEAR16 mono bytes to audio time.
func (a *Adapter) duration(n int) time.Duration {
	samples := int64(n / 2)
	return time.Duration(samples) * time.Second / time.Duration(a.cfg.SampleRateHz)
}

func (a *Adapter) heardWords() int {
	n := 0
	for n < len(a.words) && a.words[n].End <= a.heard {
		n++
	}
	return n
}

func (a *Adapter) startNext() {
	last := a.words[len(a.words)-1]
	a.next++
	a.index++
	a.announced = 0
	a.words = a.script(last.End + a.cfg.Pause)
}

// script lays out the next utterance's words starting at offset.
func (a *Adapter) script(offset time.Duration) []stt.WordTiming {
	utt := DefaultUtterances[a.next%len(DefaultUtterances)]
	fields := strings.Fields(utt.Text)
	words := make([]stt.WordTiming, len(fields))
	for i, w := range fields {
		words[i] = stt.WordTiming{Word: w, Start: offset, End: offset + a.cfg.WordDuration}
		offset += a.cfg.WordDuration
	}
	return words
}

func (a *Adapter) result(words []stt.WordTiming, final bool) stt.Result {
	ts := make([]stt.WordTiming, len(words))
	copy(ts, words)
	return stt.Result{
		Index: a.index,
		Final: final,
		Alternatives: []stt.Alternative{{
			Transcript: stt.JoinWords(ts),
			Timestamps: ts,
		}},
	}
}
