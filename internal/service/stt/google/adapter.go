// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"ai-speech-pacing-service/internal/observability/logging"
	"ai-speech-pacing-service/internal/observability/metrics"
	"ai-speech-pacing-service/internal/service/stt"
)

const provider = "google"

// Config holds the recognition settings sent with the streaming config.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string // speechpb.RecognitionConfig_AudioEncoding name
}

// DefaultConfig returns the settings used for telephony audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// parseAudioEncoding maps an encoding name to the proto enum, falling back
// to LINEAR16 for unknown or unspecified names.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	v, ok := speechpb.RecognitionConfig_AudioEncoding_value[name]
	if !ok || v == int32(speechpb.RecognitionConfig_ENCODING_UNSPECIFIED) {
		return speechpb.RecognitionConfig_LINEAR16
	}
	return speechpb.RecognitionConfig_AudioEncoding(v)
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
//
// Word time offsets are requested so every result can be paced. Google only
// attaches them to final results; interim results without offsets are
// dropped and counted.
type Adapter struct {
	client  *speech.Client
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	cb     stt.Callback
	finals int
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google stt: create client: %w", err)
	}
	return &Adapter{
		client:  c,
		cfg:     cfg,
		log:     logging.WithComponent("stt-google"),
		metrics: metrics.DefaultMetrics,
	}, nil
}

// Start opens a streaming recognition session, sends the streaming config
// and starts delivering results to cb.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		a.metrics.RecordSTTError(provider, "connect")
		return fmt.Errorf("google stt: open stream: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:              parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz:       a.cfg.SampleRateHz,
					LanguageCode:          a.cfg.LanguageCode,
					EnableWordTimeOffsets: true,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		a.metrics.RecordSTTError(provider, "config")
		return fmt.Errorf("google stt: send config: %w", err)
	}

	a.mu.Lock()
	a.stream = stream
	a.cb = cb
	a.mu.Unlock()

	go a.listen(stream, cb)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return errors.New("google stt: stream not started")
	}

	err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
	if err != nil {
		a.metrics.RecordSTTError(provider, "send")
		return fmt.Errorf("google stt: send audio: %w", err)
	}
	return nil
}

// Close half-closes the stream. Google flushes the remaining results and
// then ends the response stream, which is reported through OnEnd.
func (a *Adapter) Close() error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream != nil {
		return stream.CloseSend()
	}
	return a.client.Close()
}

func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	defer a.client.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			cb.OnEnd()
			return
		}
		if err != nil {
			a.metrics.RecordSTTError(provider, "recv")
			cb.OnError(fmt.Errorf("google stt: receive: %w", err))
			return
		}
		if st := resp.GetError(); st != nil {
			a.metrics.RecordSTTError(provider, "response")
			cb.OnError(fmt.Errorf("google stt: recognition failed: %s", st.GetMessage()))
			return
		}

		for _, r := range resp.GetResults() {
			// Interim results describe the utterance the next final closes,
			// so they share its index.
			res, ok := convertResult(r, a.finals)
			if r.GetIsFinal() {
				a.finals++
			}
			if !ok {
				a.metrics.RecordSTTResultSkipped(provider)
				a.log.Debug().
					Bool("final", r.GetIsFinal()).
					Msg("Skipping result without word offsets")
				continue
			}
			cb.OnResult(res)
		}
	}
}

// convertResult maps a Google result to a paced result. It reports false
// when the first alternative carries no word offsets.
func convertResult(r *speechpb.StreamingRecognitionResult, index int) (stt.Result, bool) {
	alts := r.GetAlternatives()
	if len(alts) == 0 || len(alts[0].GetWords()) == 0 {
		return stt.Result{}, false
	}

	res := stt.Result{
		Index:        index,
		Final:        r.GetIsFinal(),
		Alternatives: make([]stt.Alternative, 0, len(alts)),
	}
	for _, alt := range alts {
		ts := make([]stt.WordTiming, 0, len(alt.GetWords()))
		for _, w := range alt.GetWords() {
			ts = append(ts, stt.WordTiming{
				Word:  w.GetWord(),
				Start: w.GetStartTime().AsDuration(),
				End:   w.GetEndTime().AsDuration(),
			})
		}
		res.Alternatives = append(res.Alternatives, stt.Alternative{
			Transcript: alt.GetTranscript(),
			Timestamps: ts,
		})
	}
	return res, true
}
