// Package sink provides the downstream consumers of paced output.
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"ai-speech-pacing-service/internal/models"
	"ai-speech-pacing-service/internal/service/segment"
	"ai-speech-pacing-service/internal/service/stt"
)

// Writer writes paced output to an io.Writer.
//
// In object mode every emitted result is written as one JSON
// TranscriptPaced line and the stream ends with a StreamClosed line. In text
// mode only final transcripts are written, one per line.
type Writer struct {
	mu         sync.Mutex
	out        io.Writer
	enc        *json.Encoder
	meta       models.Meta
	objectMode bool
	segments   *segment.Sequence
}

// NewWriter creates a writer sink.
func NewWriter(out io.Writer, meta models.Meta, objectMode bool) *Writer {
	return &Writer{
		out:        out,
		enc:        json.NewEncoder(out),
		meta:       meta,
		objectMode: objectMode,
		segments:   segment.NewSequence(meta.InteractionID),
	}
}

// Result writes r as a TranscriptPaced line in object mode.
func (w *Writer) Result(r stt.Result) error {
	if !w.objectMode {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(models.NewTranscriptPaced(w.meta, r, time.Now()))
}

// Transcript closes a segment and, in text mode, writes text as one line.
func (w *Writer) Transcript(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.segments.Next()
	if w.objectMode {
		return nil
	}
	_, err := fmt.Fprintln(w.out, text)
	return err
}

// Close writes the close event in object mode, then closes the underlying
// writer if it is an io.Closer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.objectMode {
		if err := w.enc.Encode(models.NewStreamClosed(w.meta, w.segments.Count(), time.Now())); err != nil {
			return err
		}
	}
	if c, ok := w.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
