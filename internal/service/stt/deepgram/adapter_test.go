package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"ai-speech-pacing-service/internal/service/stt"
)

type testCallback struct {
	mu      sync.Mutex
	results []stt.Result
	errs    []error
	done    chan struct{}
}

func newTestCallback() *testCallback {
	return &testCallback{done: make(chan struct{})}
}

func (c *testCallback) OnResult(r stt.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *testCallback) OnEnd() { close(c.done) }

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	close(c.done)
}

type word struct {
	text       string
	start, end float64
}

// message renders a Deepgram results message as sent on the wire.
func message(final bool, transcript string, words ...word) string {
	ws := make([]map[string]any, len(words))
	for i, w := range words {
		ws[i] = map[string]any{"word": w.text, "start": w.start, "end": w.end, "confidence": 0.9}
	}
	b, _ := json.Marshal(map[string]any{
		"type":     string(api.TypeMessageResponse),
		"is_final": final,
		"channel": map[string]any{
			"alternatives": []map[string]any{{"transcript": transcript, "words": ws}},
		},
	})
	return string(b)
}

func TestConvertMessage(t *testing.T) {
	resp := api.MessageResponse{
		IsFinal: true,
		Channel: api.Channel{Alternatives: []api.Alternative{{
			Transcript: "hello world",
			Words: []api.Word{
				{Word: "hello", Start: 0.08, End: 0.4},
				{Word: "world", Start: 0.4, End: 0.96},
			},
		}}},
	}

	got, ok := convertMessage(&resp, 2)
	if !ok {
		t.Fatal("expected message to convert")
	}
	if got.Index != 2 || !got.Final {
		t.Errorf("expected final index 2, got index=%d final=%v", got.Index, got.Final)
	}
	ts := got.Alternatives[0].Timestamps
	if ts[0].Start != 80*time.Millisecond || ts[1].End != 960*time.Millisecond {
		t.Errorf("unexpected offsets %+v", ts)
	}
	if got.Transcript() != "hello world" {
		t.Errorf("expected transcript 'hello world', got %q", got.Transcript())
	}
}

func TestConvertMessage_NoWords(t *testing.T) {
	tests := []struct {
		name string
		resp api.MessageResponse
	}{
		{"no alternatives", api.MessageResponse{}},
		{"empty interim", api.MessageResponse{Channel: api.Channel{Alternatives: []api.Alternative{{Transcript: ""}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := convertMessage(&tt.resp, 0); ok {
				t.Error("expected message to be skipped")
			}
		})
	}
}

func TestSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want time.Duration
	}{
		{0, 0},
		{0.1, 100 * time.Millisecond},
		{1.23, 1230 * time.Millisecond},
		{2.9999999, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := seconds(tt.in); got != tt.want {
			t.Errorf("seconds(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(DefaultConfig()); err == nil {
		t.Error("expected error without api key")
	}
}

func TestConfig_ListenURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:1234/v1/listen"

	raw, err := cfg.listenURL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	for key, want := range map[string]string{
		"encoding":        "linear16",
		"sample_rate":     "8000",
		"model":           "nova-3",
		"language":        "en-US",
		"interim_results": "true",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("expected %s=%s, got %s", key, want, got)
		}
	}
}

// fakeDeepgram answers the first audio frame with an interim and a final
// result, and flushes a last final before closing on CloseStream.
func fakeDeepgram(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		answered := false
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				if answered {
					continue
				}
				answered = true
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
				conn.WriteMessage(websocket.TextMessage, []byte(message(false, "hi", word{"hi", 0, 0.3})))
				conn.WriteMessage(websocket.TextMessage, []byte(message(true, "hi there", word{"hi", 0, 0.3}, word{"there", 0.3, 0.6})))
				continue
			}
			if strings.Contains(string(msg), "CloseStream") {
				conn.WriteMessage(websocket.TextMessage, []byte(message(true, "bye", word{"bye", 1, 1.2})))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
}

func TestAdapter_Stream(t *testing.T) {
	srv := fakeDeepgram(t)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIKey = "secret"
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	cb := newTestCallback()
	if err := a.Start(context.Background(), cb); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.SendAudio(context.Background(), make([]byte, 320)); err != nil {
		t.Fatalf("send: %v", err)
	}
	// Let the first answers arrive before closing.
	deadline := time.Now().Add(5 * time.Second)
	for {
		cb.mu.Lock()
		n := len(cb.results)
		cb.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case <-cb.done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.errs) != 0 {
		t.Fatalf("unexpected errors: %v", cb.errs)
	}
	if len(cb.results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(cb.results))
	}
	want := []struct {
		index int
		final bool
		text  string
	}{
		{0, false, "hi"},
		{0, true, "hi there"},
		{1, true, "bye"},
	}
	for i, w := range want {
		r := cb.results[i]
		if r.Index != w.index || r.Final != w.final || r.Transcript() != w.text {
			t.Errorf("result %d: expected %+v, got index=%d final=%v %q", i, w, r.Index, r.Final, r.Transcript())
		}
	}

	if err := a.SendAudio(context.Background(), []byte{0, 0}); err == nil {
		t.Error("expected error sending after close")
	}
}

func TestAdapter_StartUnauthorized(t *testing.T) {
	srv := fakeDeepgram(t)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.APIKey = "wrong"
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	a, _ := New(cfg)

	if err := a.Start(context.Background(), newTestCallback()); err == nil {
		t.Error("expected dial to fail")
	}
}
