package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512

	sendBuffer      = 64
	broadcastBuffer = 256
)

// Client is one connected subscriber
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	isAdmin bool
}

// NewClient binds a websocket connection to the hub for the given user
func NewClient(hub *Hub, conn *websocket.Conn, userID string, isAdmin bool) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		userID:  userID,
		isAdmin: isAdmin,
	}
}

func (c *Client) wants(e Event) bool {
	if len(e.Audience) == 0 || c.isAdmin {
		return true
	}
	for _, id := range e.Audience {
		if id == c.userID {
			return true
		}
	}
	return false
}

// ReadPump drains the connection until the peer goes away
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("user_id", c.userID).Msg("websocket read error")
			}
			return
		}
	}
}

// WritePump pumps messages from the hub to the connection, one event per frame
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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

// Hub tracks connected clients and fans events out to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        zerolog.Logger
}

// NewHub creates a hub; call Run to start it
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "events").Logger(),
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues an event for delivery. It never blocks; events are dropped when the queue is full.
func (h *Hub) Publish(e Event) {
	select {
	case h.broadcast <- e:
	default:
		h.log.Warn().Str("type", e.Type).Msg("event queue full, dropping event")
	}
}

// Run delivers events until ctx is cancelled, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug().Str("user_id", client.userID).Int("clients", len(h.clients)).Msg("client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Debug().Str("user_id", client.userID).Int("clients", len(h.clients)).Msg("client disconnected")
			}
		case e := <-h.broadcast:
			message, err := json.Marshal(e)
			if err != nil {
				h.log.Error().Err(err).Str("type", e.Type).Msg("failed to encode event")
				continue
			}
			for client := range h.clients {
				if !client.wants(e) {
					continue
				}
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}
