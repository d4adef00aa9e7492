// Package stt defines recognizer results and the interfaces STT providers implement.
package stt

import "context"

// Callback receives recognizer output from a producer.
type Callback interface {
	// OnResult is called for every interim or final result, in arrival order.
	OnResult(r Result)

	// OnEnd is called once when no more results will arrive.
	OnEnd()

	// OnError is called when the producer fails and will deliver nothing further.
	OnError(err error)
}

// Producer pushes results into a Callback once started.
// A producer that also implements io.Closer exposes a stop handle.
type Producer interface {
	Start(ctx context.Context, cb Callback) error
}

// Adapter defines the interface for STT providers (Google, Deepgram, mock).
type Adapter interface {
	Producer

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close signals end of audio. The provider flushes its remaining
	// results and then calls OnEnd.
	Close() error
}
