package grpcapi

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ai-speech-pacing-service/internal/service/audio"
	"ai-speech-pacing-service/internal/service/pacing"
	"ai-speech-pacing-service/internal/service/stt"
)

const bufSize = 1024 * 1024

// scriptedAdapter delivers a fixed set of results once the audio input closes.
type scriptedAdapter struct {
	mu      sync.Mutex
	cb      stt.Callback
	results []stt.Result
	frames  int
	closed  bool
}

func (a *scriptedAdapter) Start(_ context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

func (a *scriptedAdapter) SendAudio(_ context.Context, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames++
	return nil
}

func (a *scriptedAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	for _, r := range a.results {
		a.cb.OnResult(r)
	}
	a.cb.OnEnd()
	return nil
}

func (a *scriptedAdapter) frameCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

// failingAdapter refuses to start and records whether it was released.
type failingAdapter struct {
	mu     sync.Mutex
	closes int
}

func (a *failingAdapter) Start(context.Context, stt.Callback) error {
	return errors.New("open stream: connection refused")
}

func (a *failingAdapter) SendAudio(context.Context, []byte) error {
	return errors.New("not started")
}

func (a *failingAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	return nil
}

func (a *failingAdapter) closeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

func helloWorld() []stt.Result {
	ts := []stt.WordTiming{
		{Word: "hello", Start: 0, End: 100 * time.Millisecond},
		{Word: "world", Start: 100 * time.Millisecond, End: 200 * time.Millisecond},
	}
	return []stt.Result{{
		Index:        0,
		Final:        true,
		Alternatives: []stt.Alternative{{Transcript: stt.JoinWords(ts), Timestamps: ts}},
	}}
}

// startServer serves s over an in-memory listener and returns a client.
func startServer(t *testing.T, opts Options) *Client {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	g := grpc.NewServer()
	Register(g, NewServer(opts))

	go func() {
		if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Errorf("serve: %v", err)
		}
	}()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func testOptions(adapter stt.Adapter) Options {
	cfg := pacing.DefaultConfig()
	cfg.Delay = -time.Minute
	return Options{
		NewAdapter: func(context.Context) (stt.Adapter, error) { return adapter, nil },
		Provider:   "test",
		Pacing:     cfg,
		Limits:     audio.DefaultLimits(),
	}
}

// collect sends frames, half-closes and reads every event until the stream ends.
func collect(t *testing.T, client *Client, md metadata.MD, frames ...[]byte) ([]*structpb.Struct, metadata.MD, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.NewOutgoingContext(ctx, md)

	stream, err := client.StreamAudio(ctx)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	for _, f := range frames {
		if err := stream.Send(wrapperspb.Bytes(f)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("close send: %v", err)
	}

	var events []*structpb.Struct
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			header, _ := stream.Header()
			return events, header, nil
		}
		if err != nil {
			return events, nil, err
		}
		events = append(events, ev)
	}
}

func field(ev *structpb.Struct, name string) *structpb.Value {
	return ev.GetFields()[name]
}

func eventTypes(events []*structpb.Struct) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = field(ev, "eventType").GetStringValue()
	}
	return out
}

func assertTypes(t *testing.T, events []*structpb.Struct, want ...string) {
	t.Helper()
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestStreamAudio_ObjectMode(t *testing.T) {
	adapter := &scriptedAdapter{results: helloWorld()}
	client := startServer(t, testOptions(adapter))

	md := metadata.Pairs(
		MetadataInteractionID, "int-1",
		MetadataTenantID, "tenant-1",
		MetadataObjectMode, "true",
	)
	events, header, err := collect(t, client, md, []byte{1, 2}, []byte{3, 4})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	assertTypes(t, events, "transcript.paced", "transcript.final", "stream.closed")

	paced := events[0]
	if got := field(paced, "text").GetStringValue(); got != "hello world" {
		t.Errorf("expected paced text 'hello world', got %q", got)
	}
	if !field(paced, "final").GetBoolValue() {
		t.Error("expected the paced result to be final")
	}
	if n := len(field(paced, "words").GetListValue().GetValues()); n != 2 {
		t.Errorf("expected 2 words, got %d", n)
	}

	final := events[1]
	if got := field(final, "segmentId").GetStringValue(); got != "int-1-seg-1" {
		t.Errorf("expected segment 'int-1-seg-1', got %q", got)
	}
	if got := field(final, "tenantId").GetStringValue(); got != "tenant-1" {
		t.Errorf("expected tenant 'tenant-1', got %q", got)
	}
	if got := field(events[2], "segments").GetNumberValue(); got != 1 {
		t.Errorf("expected 1 segment, got %v", got)
	}

	if sid := header.Get(MetadataSessionID); len(sid) != 1 || sid[0] == "" {
		t.Errorf("expected a session-id header, got %v", sid)
	}
	if got := field(paced, "sessionId").GetStringValue(); got != header.Get(MetadataSessionID)[0] {
		t.Errorf("expected events to carry the session ID from the header, got %q", got)
	}
	if n := adapter.frameCount(); n != 2 {
		t.Errorf("expected 2 frames forwarded, got %d", n)
	}
}

func TestStreamAudio_TextMode(t *testing.T) {
	client := startServer(t, testOptions(&scriptedAdapter{results: helloWorld()}))

	events, header, err := collect(t, client, metadata.MD{}, []byte{1})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	assertTypes(t, events, "transcript.final", "stream.closed")
	if got := field(events[0], "text").GetStringValue(); got != "hello world" {
		t.Errorf("expected 'hello world', got %q", got)
	}
	// Without an interaction-id the session ID is used.
	if got := field(events[0], "interactionId").GetStringValue(); got != header.Get(MetadataSessionID)[0] {
		t.Errorf("expected interaction ID to default to the session ID, got %q", got)
	}
}

func TestStreamAudio_InvalidMetadata(t *testing.T) {
	tests := []struct {
		name string
		md   metadata.MD
	}{
		{"emit-at", metadata.Pairs(MetadataEmitAt, "middle")},
		{"delay-ms", metadata.Pairs(MetadataDelayMs, "soon")},
		{"delay-ms overflow", metadata.Pairs(MetadataDelayMs, "9223372036854775")},
		{"object-mode", metadata.Pairs(MetadataObjectMode, "perhaps")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := startServer(t, testOptions(&scriptedAdapter{}))
			_, _, err := collect(t, client, tt.md)
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestStreamAudio_AdapterUnavailable(t *testing.T) {
	opts := testOptions(nil)
	opts.NewAdapter = func(context.Context) (stt.Adapter, error) {
		return nil, errors.New("provider down")
	}
	client := startServer(t, opts)

	_, _, err := collect(t, client, metadata.MD{})
	if status.Code(err) != codes.Unavailable {
		t.Errorf("expected Unavailable, got %v", err)
	}
}

func TestStreamAudio_LimitExceededDrainsThenFails(t *testing.T) {
	opts := testOptions(&scriptedAdapter{results: helloWorld()})
	opts.Limits = audio.SessionLimits{MaxAudioBytes: 4, MaxDuration: time.Hour}
	client := startServer(t, opts)

	events, _, err := collect(t, client, metadata.MD{}, make([]byte, 8))
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
	assertTypes(t, events, "transcript.final", "stream.closed")
}

func TestStreamAudio_PerStreamPacingOverride(t *testing.T) {
	opts := testOptions(&scriptedAdapter{results: helloWorld()})
	opts.Pacing.Delay = time.Hour
	client := startServer(t, opts)

	// The default delay would hold every word for an hour.
	md := metadata.Pairs(MetadataDelayMs, "-60000", MetadataEmitAt, "end")
	events, _, err := collect(t, client, md)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	assertTypes(t, events, "transcript.final", "stream.closed")
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{nil, codes.OK},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{audio.ErrLimitExceeded, codes.ResourceExhausted},
		{pacing.ErrStalled, codes.Internal},
		{pacing.ErrNoTimestamps, codes.Internal},
		{errors.New("pacing: producer failed: boom"), codes.Unavailable},
		{status.Error(codes.Aborted, "aborted"), codes.Aborted},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.code {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.code)
		}
	}
}

func TestStreamAudio_StartFailureClosesAdapter(t *testing.T) {
	adapter := &failingAdapter{}
	client := startServer(t, testOptions(adapter))

	_, _, err := collect(t, client, metadata.MD{})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if got := adapter.closeCount(); got != 1 {
		t.Errorf("expected adapter to be closed once, got %d", got)
	}
}
