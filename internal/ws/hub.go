package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	// sendBuffer is how many messages may wait for a slow connection before
	// it is dropped.
	sendBuffer = 32
)

var errNotSubscribed = errors.New("connection is not subscribed")

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// client owns the writes to one connection. Only its writer goroutine
// touches the socket.
type client struct {
	sessionID uint
	conn      *websocket.Conn
	send      chan []byte
}

// Hub fans messages out to the websocket connections subscribed to a session.
// Broadcast only queues; a connection whose queue is full is dropped instead
// of delaying the others.
type Hub struct {
	mu       sync.Mutex
	sessions map[uint]map[*client]bool
	clients  map[*websocket.Conn]*client
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[uint]map[*client]bool),
		clients:  make(map[*websocket.Conn]*client),
	}
}

func (h *Hub) AddConnection(sessionID uint, conn *websocket.Conn) {
	c := &client{sessionID: sessionID, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*client]bool)
	}
	h.sessions[sessionID][c] = true
	h.clients[conn] = c
	total := len(h.sessions[sessionID])
	h.mu.Unlock()

	go h.writeLoop(c)
	log.Printf("ws: client connected to session %d (total: %d)", sessionID, total)
}

func (h *Hub) RemoveConnection(sessionID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[conn]
	if !ok || c.sessionID != sessionID {
		return
	}
	h.drop(c)
	log.Printf("ws: client disconnected from session %d", sessionID)
}

// drop unregisters c and ends its writer, which closes the socket. Callers
// hold h.mu.
func (h *Hub) drop(c *client) {
	delete(h.clients, c.conn)
	if conns, ok := h.sessions[c.sessionID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.sessions, c.sessionID)
		}
	}
	close(c.send)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("ws: write error: %v", err)
			h.RemoveConnection(c.sessionID, c.conn)
			// Drain so nothing blocks on a queue nobody reads.
			for range c.send {
			}
			return
		}
	}
}

// SendTo queues a message for a single connection, e.g. the initial snapshot
// right after subscribing.
func (h *Hub) SendTo(conn *websocket.Conn, message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[conn]
	if !ok {
		return errNotSubscribed
	}
	if !h.enqueue(c, data) {
		return errors.New("connection is too slow")
	}
	return nil
}

func (h *Hub) Broadcast(sessionID uint, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("ws: marshal error: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.sessions[sessionID] {
		h.enqueue(c, data)
	}
}

// enqueue hands data to c's writer, dropping c when its queue is full.
// Callers hold h.mu.
func (h *Hub) enqueue(c *client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("ws: session %d: client too slow, dropping connection", c.sessionID)
		h.drop(c)
		return false
	}
}

func (h *Hub) ConnectionCount(sessionID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}
