package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/itskum47/TaskFlux/scheduler_plane/model"
)

const maxWSConnections = 200

// EventHub fans scheduler events out to WebSocket clients. Single
// broadcaster pattern: the hub drains the subscribers' bounded event
// channels and writes to every connected client.
type EventHub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	workerEvents   <-chan model.WorkerEvent
	feedbackEvents <-chan model.FeedbackEvent
}

// NewEventHub creates a hub over the two event channels. Either channel may
// be nil.
func NewEventHub(workerEvents <-chan model.WorkerEvent, feedbackEvents <-chan model.FeedbackEvent) *EventHub {
	return &EventHub{
		clients:        make(map[*websocket.Conn]struct{}),
		register:       make(chan *websocket.Conn),
		unregister:     make(chan *websocket.Conn),
		workerEvents:   workerEvents,
		feedbackEvents: feedbackEvents,
	}
}

// Run starts the hub's main loop.
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxWSConnections {
				h.mu.Unlock()
				conn.Close()
				log.Printf("websocket connection rejected: max connections (%d) reached", maxWSConnections)
				continue
			}
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
			log.Printf("websocket client registered. Total: %d", h.ClientCount())

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case ev := <-h.workerEvents:
			h.broadcast(ev)

		case ev := <-h.feedbackEvents:
			h.broadcast(ev)
		}
	}
}

func (h *EventHub) broadcast(payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			go h.Unregister(conn)
		}
	}
}

func (h *EventHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	log.Printf("shutting down websocket hub with %d clients", len(h.clients))
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// Register adds a new client connection.
func (h *EventHub) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes a client connection.
func (h *EventHub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
