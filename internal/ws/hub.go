package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kiwari-pos/ordering/internal/notify"
	"github.com/rs/zerolog/log"
)

// Frame types pushed to clients.
const (
	TypeOrdersSnapshot = "orders.snapshot"
	TypeNotification   = "notification"
)

// Event represents a WebSocket message sent to clients
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// roomEvent is an internal struct for routing events to one audience
type roomEvent struct {
	Audience string
	Event    Event
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Rooms are keyed by notification audience: the staff room, or one room per
// customer.
type Hub struct {
	// Registered clients by audience
	rooms map[string]map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *roomEvent

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done, closing every
// client. It should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for audience, clients := range h.rooms {
				for client := range clients {
					client.closeSend()
				}
				delete(h.rooms, audience)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.audience] == nil {
				h.rooms[client.audience] = make(map[*Client]bool)
			}
			h.rooms[client.audience][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			// Marshal event to JSON once
			message, err := json.Marshal(event.Event)
			if err != nil {
				log.Error().Err(err).Str("type", event.Event.Type).Msg("ws: marshal event")
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.Audience] {
				if !client.trySend(message) {
					// Client's send buffer is full, drop it
					log.Warn().Str("audience", event.Audience).Msg("ws: client too slow, disconnecting")
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// join registers client unless the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters client. It never blocks after the hub has stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// remove unregisters client. Callers hold h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.audience]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	client.closeSend()
	// Clean up empty rooms
	if len(clients) == 0 {
		delete(h.rooms, client.audience)
	}
}

// Broadcast sends an event to every client in the audience's room.
func (h *Hub) Broadcast(ctx context.Context, audience string, event Event) error {
	select {
	case <-h.done:
		return fmt.Errorf("broadcast to %s: hub stopped", audience)
	default:
	}
	select {
	case h.broadcast <- &roomEvent{Audience: audience, Event: event}:
		return nil
	case <-h.done:
		return fmt.Errorf("broadcast to %s: hub stopped", audience)
	case <-ctx.Done():
		return fmt.Errorf("broadcast to %s: %w", audience, ctx.Err())
	}
}

// ScheduleLocal delivers n in-app to the connected clients of its audience.
// Nobody being connected is not an error.
func (h *Hub) ScheduleLocal(ctx context.Context, n notify.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return h.Broadcast(ctx, n.Audience, Event{Type: TypeNotification, Payload: payload})
}

// ClientCount reports how many clients are connected for audience.
func (h *Hub) ClientCount(audience string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[audience])
}
