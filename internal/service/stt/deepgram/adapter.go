// Package deepgram provides a Deepgram live transcription adapter over the
// listen websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-speech-pacing-service/internal/observability/logging"
	"ai-speech-pacing-service/internal/observability/metrics"
	"ai-speech-pacing-service/internal/service/stt"
)

const (
	provider   = "deepgram"
	defaultURL = "wss://api.deepgram.com/v1/listen"
)

// Config holds connection and recognition settings.
type Config struct {
	APIKey         string
	URL            string // defaults to the hosted listen endpoint
	Model          string
	LanguageCode   string
	SampleRateHz   int
	Encoding       string // linear16, mulaw or alaw
	InterimResults bool
}

// DefaultConfig returns the settings used for telephony audio.
func DefaultConfig() Config {
	return Config{
		URL:            defaultURL,
		Model:          "nova-3",
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		Encoding:       "linear16",
		InterimResults: true,
	}
}

// listenURL builds the websocket URL with recognition parameters.
func (c Config) listenURL() (string, error) {
	raw := c.URL
	if raw == "" {
		raw = defaultURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("deepgram: invalid url %q: %w", raw, err)
	}
	q := u.Query()
	q.Set("encoding", c.Encoding)
	q.Set("sample_rate", strconv.Itoa(c.SampleRateHz))
	q.Set("channels", "1")
	q.Set("model", c.Model)
	q.Set("language", c.LanguageCode)
	q.Set("interim_results", strconv.FormatBool(c.InterimResults))
	q.Set("endpointing", "300")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Adapter implements stt.Adapter on a Deepgram listen websocket.
type Adapter struct {
	cfg     Config
	dialer  *websocket.Dialer
	log     zerolog.Logger
	metrics *metrics.Metrics

	connMu sync.Mutex
	conn   *websocket.Conn
	closed bool

	finals int // owned by the read goroutine
}

// New creates a Deepgram adapter. The connection is opened by Start.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepgram: api key not configured")
	}
	return &Adapter{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		log:     logging.WithComponent("stt-deepgram"),
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Start opens the websocket and starts delivering results to cb.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	listenURL, err := a.cfg.listenURL()
	if err != nil {
		return err
	}

	conn, _, err := a.dialer.DialContext(ctx, listenURL, http.Header{"Authorization": {"Token " + a.cfg.APIKey}})
	if err != nil {
		a.metrics.RecordSTTError(provider, "connect")
		return fmt.Errorf("deepgram: open websocket: %w", err)
	}

	a.connMu.Lock()
	a.conn = conn
	a.connMu.Unlock()

	go a.read(ctx, conn, cb)
	return nil
}

// SendAudio writes one binary audio frame.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if a.conn == nil || a.closed {
		return errors.New("deepgram: stream not open")
	}
	if err := a.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		a.metrics.RecordSTTError(provider, "send")
		return fmt.Errorf("deepgram: write audio: %w", err)
	}
	return nil
}

// Close asks Deepgram to flush and close the stream. The remaining results
// are still delivered before OnEnd.
func (a *Adapter) Close() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if a.conn == nil || a.closed {
		return nil
	}
	a.closed = true
	err := a.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)})
	if err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

func (a *Adapter) read(ctx context.Context, conn *websocket.Conn, cb stt.Callback) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				cb.OnEnd()
				return
			}
			if ctx.Err() != nil {
				cb.OnError(ctx.Err())
				return
			}
			a.metrics.RecordSTTError(provider, "recv")
			cb.OnError(fmt.Errorf("deepgram: read: %w", err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := a.handle(msg, cb); err != nil {
			a.metrics.RecordSTTError(provider, "decode")
			cb.OnError(err)
			return
		}
	}
}

func (a *Adapter) handle(msg []byte, cb stt.Callback) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return fmt.Errorf("deepgram: decode message: %w", err)
	}

	switch api.TypeResponse(envelope.Type) {
	case api.TypeMessageResponse:
		var resp api.MessageResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return fmt.Errorf("deepgram: decode results: %w", err)
		}
		res, ok := convertMessage(&resp, a.finals)
		if resp.IsFinal {
			a.finals++
		}
		if !ok {
			a.metrics.RecordSTTResultSkipped(provider)
			return nil
		}
		cb.OnResult(res)
	default:
		a.log.Debug().Str("type", envelope.Type).Msg("Ignoring deepgram message")
	}
	return nil
}

// convertMessage maps a Deepgram results message to a paced result. Interim
// messages share the index of the final that will close their segment.
func convertMessage(resp *api.MessageResponse, index int) (stt.Result, bool) {
	alts := resp.Channel.Alternatives
	if len(alts) == 0 || len(alts[0].Words) == 0 {
		return stt.Result{}, false
	}

	res := stt.Result{
		Index:        index,
		Final:        resp.IsFinal,
		Alternatives: make([]stt.Alternative, 0, len(alts)),
	}
	for _, alt := range alts {
		ts := make([]stt.WordTiming, 0, len(alt.Words))
		for _, w := range alt.Words {
			ts = append(ts, stt.WordTiming{
				Word:  w.Word,
				Start: seconds(w.Start),
				End:   seconds(w.End),
			})
		}
		res.Alternatives = append(res.Alternatives, stt.Alternative{
			Transcript: alt.Transcript,
			Timestamps: ts,
		})
	}
	return res, true
}

// seconds converts fractional seconds to a duration at microsecond precision.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s*1e6)) * time.Microsecond
}
