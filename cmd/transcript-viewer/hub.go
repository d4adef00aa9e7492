package main

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ai-speech-pacing-service/internal/models"
)

// Event is the union of the paced event shapes read from Kafka.
type Event struct {
	EventType     string        `json:"eventType"`
	SessionID     string        `json:"sessionId"`
	InteractionID string        `json:"interactionId"`
	TenantID      string        `json:"tenantId"`
	Timestamp     int64         `json:"timestamp"`
	Index         int           `json:"index"`
	Final         bool          `json:"final,omitempty"`
	Text          string        `json:"text,omitempty"`
	Words         []models.Word `json:"words,omitempty"`
	SegmentID     string        `json:"segmentId,omitempty"`
	AudioOffsetMs int64         `json:"audioOffsetMs,omitempty"`
	DurationMs    int64         `json:"durationMs,omitempty"`
	Segments      int           `json:"segments,omitempty"`
}

// client is one browser connection. Writes happen only on its own goroutine.
type client struct {
	conn *websocket.Conn
	send chan Event
}

func (c *client) writeLoop(h *Hub) {
	defer func() {
		h.unregister <- c
	}()
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			log.Warn().Err(err).Msg("Websocket write failed")
			return
		}
	}
}

// Hub fans events out to every connected browser. All client bookkeeping
// happens on the run goroutine.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	count      chan chan int
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Event, 100),
		register:   make(chan *client),
		unregister: make(chan *client),
		count:      make(chan chan int),
	}
}

func (h *Hub) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			log.Info().Int("clients", len(h.clients)).Msg("Client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				log.Info().Int("clients", len(h.clients)).Msg("Client disconnected")
			}

		case ev := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// Too slow to keep up with the live stream.
					log.Warn().Msg("Dropping slow client")
					h.drop(c)
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	reply := make(chan int)
	h.count <- reply
	return <-reply
}
