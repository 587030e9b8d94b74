package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/paint-and-guess/internal/domain"
	"github.com/paint-and-guess/internal/game"
)

const publishTimeout = 2 * time.Second

// Publisher forwards room broadcasts to other server nodes
type Publisher interface {
	Publish(ctx context.Context, roomID, except string, payload []byte) error
}

// outbound is an encoded event and who should receive it
type outbound struct {
	roomID string
	except string
	connID string
	data   []byte
}

type registration struct {
	client *Client
	roomID string
}

// Hub maintains the set of active clients per room and delivers events to
// them in the order they were sent.
type Hub struct {
	// Registered clients by room ID
	rooms map[string]map[*Client]bool

	// All connected clients by connection ID
	clients map[string]*Client

	// Register requests from clients
	register chan *registration

	// Unregister requests from clients
	unregister chan *Client

	// Outbound events from rooms and the relay
	broadcast chan *outbound

	// Room broadcasts waiting to be published to other nodes
	relay chan *outbound

	publisher Publisher

	// Mutex for stats readers
	mu sync.RWMutex

	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

var _ game.Broadcaster = (*Hub)(nil)

// NewHub creates a new Hub. publisher may be nil for a single node.
func NewHub(publisher Publisher, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[string]*Client),
		register:   make(chan *registration),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 1024),
		relay:      make(chan *outbound, 1024),
		publisher:  publisher,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	if h.publisher != nil {
		go h.publishLoop()
	}
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.id] = reg.client
			if _, ok := h.rooms[reg.roomID]; !ok {
				h.rooms[reg.roomID] = make(map[*Client]bool)
			}
			h.rooms[reg.roomID][reg.client] = true
			reg.client.roomID = reg.roomID
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", reg.client.id, "room", reg.roomID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// remove must be called with mu held
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)
	if clients, ok := h.rooms[client.roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, client.roomID)
		}
	}
	close(client.send)
}

// deliver sends an event to its recipients. A client that cannot keep up is
// disconnected rather than silently missing events.
func (h *Hub) deliver(msg *outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.connID != "" {
		if client, ok := h.clients[msg.connID]; ok {
			h.push(client, msg.data)
		}
		return
	}

	for client := range h.rooms[msg.roomID] {
		if client.id == msg.except {
			continue
		}
		h.push(client, msg.data)
	}
}

// push must be called with mu held
func (h *Hub) push(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.logger.Warn("client buffer full, disconnecting", "client_id", client.id)
		h.remove(client)
	}
}

func (h *Hub) enqueue(msg *outbound) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

func (h *Hub) encode(ev domain.Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", "event", ev.Name, "error", err)
		return nil, false
	}
	return data, true
}

// ToRoom sends an event to every client in a room
func (h *Hub) ToRoom(roomID string, ev domain.Event) {
	h.ToRoomExcept(roomID, "", ev)
}

// ToRoomExcept sends an event to every client in a room but one. Chat and
// canvas events also go to the room's clients on other nodes.
func (h *Hub) ToRoomExcept(roomID, exceptConnID string, ev domain.Event) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	msg := &outbound{roomID: roomID, except: exceptConnID, data: data}
	h.enqueue(msg)

	if h.publisher != nil && domain.CrossesNodes(ev.Name) {
		select {
		case h.relay <- msg:
		default:
			h.logger.Warn("relay queue full, dropping remote broadcast", "room", roomID, "event", ev.Name)
		}
	}
}

// ToConn sends an event to one local client
func (h *Hub) ToConn(connID string, ev domain.Event) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	h.enqueue(&outbound{connID: connID, data: data})
}

// DeliverRemote hands a broadcast received from another node to local clients
func (h *Hub) DeliverRemote(roomID, except string, payload []byte) {
	h.enqueue(&outbound{roomID: roomID, except: except, data: payload})
}

// publishLoop publishes room broadcasts one at a time so other nodes see
// them in order.
func (h *Hub) publishLoop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg := <-h.relay:
			ctx, cancel := context.WithTimeout(h.ctx, publishTimeout)
			if err := h.publisher.Publish(ctx, msg.roomID, msg.except, msg.data); err != nil {
				h.logger.Warn("failed to relay room event", "room", msg.roomID, "error", err)
			}
			cancel()
		}
	}
}

// Register adds a client to a room
func (h *Hub) Register(client *Client, roomID string) {
	select {
	case h.register <- &registration{client: client, roomID: roomID}:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// GetRoomConnections returns the number of local clients in a room
func (h *Hub) GetRoomConnections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetRoomCount returns the number of rooms with local clients
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
