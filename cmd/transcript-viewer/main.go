// Command transcript-viewer shows paced transcripts from Kafka live in a
// browser.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-speech-pacing-service/internal/observability/logging"
)

//go:embed static/*
var staticFiles embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		c := &client{conn: conn, send: make(chan Event, 256)}
		hub.register <- c
		go c.writeLoop(hub)

		// Reads only detect the browser going away.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.unregister <- c
					return
				}
			}
		}()
	}
}

func newRouter(hub *Hub) http.Handler {
	staticFS, _ := fs.Sub(staticFiles, "static")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", wsHandler(hub))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/*", http.FileServer(http.FS(staticFS)))
	return r
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string, since time.Duration) {
	// Partition reader without a consumer group works better through port-forward.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from the start")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming from Kafka")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read failed")
			time.Sleep(time.Second)
			continue
		}

		ev, err := decodeEvent(msg.Value)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping undecodable message")
			continue
		}
		log.Debug().
			Str("eventType", ev.EventType).
			Str("interactionId", ev.InteractionID).
			Str("text", truncate(ev.Text, 40)).
			Msg("Received event")

		select {
		case hub.broadcast <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func decodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	if ev.EventType == "" {
		return ev, errors.New("missing eventType")
	}
	return ev, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func main() {
	addr := flag.String("addr", ":8081", "HTTP listen address")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicResults := flag.String("topic-results", "interaction.transcript.paced", "Paced results topic")
	topicFinal := flag.String("topic-final", "interaction.transcript.final", "Final transcript topic")
	since := flag.Duration("since", time.Hour, "Replay messages newer than this on start")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	go hub.run(ctx.Done())

	brokerList := strings.Split(*brokers, ",")
	go consumeKafka(ctx, hub, brokerList, *topicResults, *since)
	go consumeKafka(ctx, hub, brokerList, *topicFinal, *since)

	srv := &http.Server{Addr: *addr, Handler: newRouter(hub)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", *addr).
		Strs("brokers", brokerList).
		Strs("topics", []string{*topicResults, *topicFinal}).
		Msg("Transcript Viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}
}
