package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chesschain/gasreld/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Envelope is the wire shape of every event sent to a client.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// InboundHandler processes a raw client message addressed to event. room is
// the room named by the message's player_address, whether or not the sending
// client has joined it.
type InboundHandler func(room, event string, raw json.RawMessage)

// Client is one connected event-bus socket.
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool
	mu    sync.RWMutex
	hub   *Hub
}

// Hub manages room membership and fan-out for the event bus.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	broadcast  chan roomMessage
	register   chan *Client
	unregister chan *Client
	onMessage  InboundHandler
	log        *logging.Logger
	mu         sync.RWMutex
}

type roomMessage struct {
	room string
	data []byte
}

// NewHub returns a Hub whose inbound client messages are dispatched to onMessage.
func NewHub(onMessage InboundHandler) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan roomMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		onMessage:  onMessage,
		log:        logging.GetDefault().Component("events"),
	}
}

// Run starts the hub's event loop. It never returns; callers run it in its
// own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.mu.RLock()
				for room := range client.rooms {
					if members, exists := h.rooms[room]; exists {
						delete(members, client)
						if len(members) == 0 {
							delete(h.rooms, room)
						}
					}
				}
				client.mu.RUnlock()
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			members := h.rooms[msg.room]
			for client := range members {
				select {
				case client.send <- msg.data:
				default:
					h.log.Warn("client send buffer full, dropping event for client", "room", msg.room)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// SetHandler sets the inbound message handler after construction, so the
// hub can be created before the handler's own dependencies (which may
// themselves depend on the hub for outbound emission) are ready.
func (h *Hub) SetHandler(onMessage InboundHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = onMessage
}

// EmitToRoom publishes an event to every client joined to room. If the
// broadcast queue is full the event is dropped and logged, matching the
// bus's best-effort, at-most-once delivery contract.
func (h *Hub) EmitToRoom(room, event string, data interface{}) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.log.Error("marshal event", "event", event, "error", err)
		return
	}

	select {
	case h.broadcast <- roomMessage{room: room, data: payload}:
	default:
		h.log.Warn("broadcast channel full, dropping event", "event", event, "room", room)
	}
}

func (h *Hub) joinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
}

func (h *Hub) leaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// ServeHTTP upgrades the connection and begins the client's read/write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("event bus upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:  conn,
		send:  make(chan []byte, 256),
		rooms: make(map[string]bool),
		hub:   h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

type inboundMessage struct {
	Event         string          `json:"event"`
	PlayerAddress string          `json:"player_address"`
	Data          json.RawMessage `json:"data"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(8192)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("event bus read error", "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Warn("malformed event bus message", "error", err)
			continue
		}

		switch msg.Event {
		case InJoinPlayerRoom:
			room := RoomForActor(msg.PlayerAddress)
			c.mu.Lock()
			c.rooms[room] = true
			c.mu.Unlock()
			c.hub.joinRoom(c, room)
		case InLeavePlayerRoom:
			room := RoomForActor(msg.PlayerAddress)
			c.mu.Lock()
			delete(c.rooms, room)
			c.mu.Unlock()
			c.hub.leaveRoom(c, room)
		default:
			c.hub.mu.RLock()
			handler := c.hub.onMessage
			c.hub.mu.RUnlock()
			if handler != nil {
				room := RoomForActor(msg.PlayerAddress)
				handler(room, msg.Event, msg.Data)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// RoomSize returns the number of clients currently joined to room, for tests
// and diagnostics.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
