package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/ordering/internal/auth"
	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/notify"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/realtime"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (we validate via JWT)
	},
}

// Subscriber opens order subscriptions. Satisfied by *realtime.Broker.
type Subscriber interface {
	Subscribe(filter realtime.Filter, cb realtime.Callback) (unsubscribe func())
}

// Client represents a single WebSocket connection
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	audience string
	send     chan []byte

	mu     sync.Mutex
	closed bool

	// unsubscribe detaches the connection's order subscription
	unsubscribe func()
}

// trySend queues message without blocking. It reports false only when the
// buffer is full; a closed client swallows the message.
func (c *Client) trySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendSnapshot is the broker callback for this connection. Every frame is
// the full order list, so a frame dropped for a slow reader is superseded
// by the next one.
func (c *Client) sendSnapshot(orders []order.Order) {
	payload, err := json.Marshal(orders)
	if err != nil {
		log.Error().Err(err).Msg("ws: marshal snapshot")
		return
	}
	message, err := json.Marshal(Event{Type: TypeOrdersSnapshot, Payload: payload})
	if err != nil {
		log.Error().Err(err).Msg("ws: marshal snapshot frame")
		return
	}
	if !c.trySend(message) {
		log.Warn().Str("audience", c.audience).Int("orders", len(orders)).Msg("ws: snapshot dropped, send buffer full")
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
// The application runs ReadPump in a per-connection goroutine
// Clients don't send messages - we just detect disconnects
func (c *Client) ReadPump() {
	defer func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Read loop - we just wait for disconnect or errors
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("audience", c.audience).Msg("websocket error")
			}
			break
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
// The application runs WritePump in a per-connection goroutine
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS handles WebSocket requests from clients
// Endpoint: WS /ws/orders?token=JWT
//
// Staff join the staff room and follow every order; customers join their
// own room and follow their own orders.
func ServeWS(hub *Hub, broker Subscriber, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	// 1. Extract token from query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	// 2. Validate JWT
	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// 3. Pick room and subscription filter from the role
	audience := notify.UserAudience(claims.UserID)
	filter := realtime.ForUser(claims.UserID)
	if claims.Role == enum.UserRoleStaff {
		audience = enum.AudienceStaff
		filter = realtime.AllOrders()
	}

	// 4. Upgrade to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	// 5. Create client and register with hub
	client := &Client{
		hub:      hub,
		conn:     conn,
		audience: audience,
		send:     make(chan []byte, 256),
	}
	if !hub.join(client) {
		conn.Close()
		return
	}
	client.unsubscribe = broker.Subscribe(filter, client.sendSnapshot)
	log.Debug().Str("audience", audience).Stringer("filter", filter).Msg("websocket connected")

	// 6. Start pumps in separate goroutines
	go client.WritePump()
	go client.ReadPump()
}
