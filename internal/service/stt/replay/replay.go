// Package replay re-delivers recorded recognizer results with their original
// arrival timing, so a session can be paced offline.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"ai-speech-pacing-service/internal/service/stt"
)

// Word is a recorded word with offsets in seconds.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Alternative is a recorded hypothesis.
type Alternative struct {
	Transcript string `json:"transcript"`
	Timestamps []Word `json:"timestamps"`
}

// Record is one line of a recording: a result and when it arrived, in
// seconds after the session started.
type Record struct {
	ReceivedAt   float64       `json:"receivedAt"`
	Index        int           `json:"index"`
	Final        bool          `json:"final"`
	Alternatives []Alternative `json:"alternatives"`
}

// Result converts the record to a recognizer result.
func (r Record) Result() stt.Result {
	res := stt.Result{Index: r.Index, Final: r.Final}
	for _, alt := range r.Alternatives {
		ts := make([]stt.WordTiming, len(alt.Timestamps))
		for i, w := range alt.Timestamps {
			ts[i] = stt.WordTiming{Word: w.Word, Start: seconds(w.Start), End: seconds(w.End)}
		}
		res.Alternatives = append(res.Alternatives, stt.Alternative{Transcript: alt.Transcript, Timestamps: ts})
	}
	return res
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}

// Load reads a JSON Lines recording. Blank lines are skipped.
func Load(r io.Reader) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("replay: read: %w", err)
	}
	return records, nil
}

// Producer implements stt.Producer over a recording. Close stops delivery
// early and ends the stream.
type Producer struct {
	records []Record
	clock   clockwork.Clock
	stop    chan struct{}
	once    sync.Once
}

// New creates a producer. A nil clock uses the real clock.
func New(records []Record, clock clockwork.Clock) *Producer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Producer{records: records, clock: clock, stop: make(chan struct{})}
}

// Start delivers the records in the background, each at its arrival offset
// from now.
func (p *Producer) Start(ctx context.Context, cb stt.Callback) error {
	go p.run(ctx, cb, p.clock.Now())
	return nil
}

// Close stops delivery.
func (p *Producer) Close() error {
	p.once.Do(func() { close(p.stop) })
	return nil
}

func (p *Producer) run(ctx context.Context, cb stt.Callback, start time.Time) {
	for _, rec := range p.records {
		wait := start.Add(seconds(rec.ReceivedAt)).Sub(p.clock.Now())
		if wait > 0 {
			select {
			case <-p.clock.After(wait):
			case <-ctx.Done():
				cb.OnError(ctx.Err())
				return
			case <-p.stop:
				cb.OnEnd()
				return
			}
		}
		select {
		case <-p.stop:
			cb.OnEnd()
			return
		default:
		}
		cb.OnResult(rec.Result())
	}
	cb.OnEnd()
}
