package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/paint-and-guess/internal/domain"
	"github.com/paint-and-guess/internal/game"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; canvas snapshots are large
	maxMessageSize = 1 << 20

	eventPing = "ping"
	eventPong = "pong"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Session receives the events a client reads off its connection
type Session interface {
	Deliver(in game.Inbound)
	Disconnect(connID string)
}

// Client represents a WebSocket client connection
type Client struct {
	id      string
	roomID  string
	hub     *Hub
	session Session
	conn    *websocket.Conn
	send    chan []byte
	logger  *slog.Logger
}

// ClientMessage represents a named event from the client
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: logger.With("client_id", id),
	}
}

// readPump pumps events from the WebSocket connection to the room
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.session.Disconnect(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil || clientMsg.Event == "" {
			c.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage answers transport pings and forwards everything else
func (c *Client) handleMessage(msg *ClientMessage) {
	if msg.Event == eventPing {
		c.sendDirect(domain.Event{Name: eventPong})
		return
	}
	c.session.Deliver(game.Inbound{
		ConnID: c.id,
		Name:   msg.Event,
		Data:   msg.Data,
	})
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
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

			// One event per frame; clients decode each frame as a single JSON value
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

// sendError sends an error event straight to this client
func (c *Client) sendError(errMsg string) {
	c.sendDirect(domain.Event{
		Name: domain.EventError,
		Data: map[string]string{"error": errMsg},
	})
}

// sendDirect routes through the hub so ordering with room events holds
func (c *Client) sendDirect(ev domain.Event) {
	c.hub.ToConn(c.id, ev)
}

// ServeWs upgrades the request and attaches the connection to roomID
func ServeWs(hub *Hub, rooms *game.Manager, roomID string, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	roomID = rooms.ResolveRoomID(roomID)
	client := NewClient(hub, conn, logger)

	// Register before connecting so the room's greeting events find the client
	hub.Register(client, roomID)
	client.session = rooms.Connect(roomID, client.id)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id, "room", roomID)
}
