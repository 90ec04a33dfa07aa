package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"codearena/internal/model"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MsgSessionState carries the full latest session document. Clients
	// derive all behavior from it; intermediate states may be coalesced.
	MsgSessionState MessageType = "session_state"

	// MsgSessionGone tells clients the session disappeared and they should
	// reset to the lobby.
	MsgSessionGone MessageType = "session_gone"

	MsgRaceFinished MessageType = "race_finished"
	MsgError        MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SessionFeed is the store-subscription surface the hub rides on.
// arena.Manager satisfies it.
type SessionFeed interface {
	Subscribe(ctx context.Context, code string, onUpdate func(*model.Session)) (func(), error)
}

// Connection represents one WebSocket client watching a session.
type Connection struct {
	SessionCode string
	UserID      string
	Send        chan []byte
}

// Hub fans session-store change notifications out to every connected client
// of a session. It holds exactly one store subscription per session code,
// opened when the first client connects and closed when the last leaves.
type Hub struct {
	feed SessionFeed

	mu     sync.RWMutex
	conns  map[string]map[*Connection]bool // code -> connections
	unsubs map[string]func()               // code -> store unsubscribe

	register   chan *Connection
	unregister chan *Connection
}

// NewHub creates the hub and starts its coordination loop.
func NewHub(feed SessionFeed) *Hub {
	h := &Hub{
		feed:       feed,
		conns:      make(map[string]map[*Connection]bool),
		unsubs:     make(map[string]func()),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			code := conn.SessionCode
			if h.conns[code] == nil {
				h.conns[code] = make(map[*Connection]bool)
			}
			h.conns[code][conn] = true
			first := len(h.conns[code]) == 1
			h.mu.Unlock()

			if first {
				h.openFeed(code)
			}
			log.Printf("user %s watching session %s", conn.UserID, code)

		case conn := <-h.unregister:
			h.mu.Lock()
			code := conn.SessionCode
			if conns, ok := h.conns[code]; ok && conns[conn] {
				delete(conns, conn)
				close(conn.Send)
				if len(conns) == 0 {
					delete(h.conns, code)
					if unsub, ok := h.unsubs[code]; ok {
						unsub()
						delete(h.unsubs, code)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("user %s stopped watching session %s", conn.UserID, code)
		}
	}
}

// openFeed subscribes to store changes for code and wires them to broadcast.
func (h *Hub) openFeed(code string) {
	unsub, err := h.feed.Subscribe(context.Background(), code, func(doc *model.Session) {
		if doc == nil {
			h.broadcast(code, &Message{Type: MsgSessionGone})
			return
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			return
		}
		h.broadcast(code, &Message{Type: MsgSessionState, Payload: payload})
	})
	if err != nil {
		log.Printf("session %s: feed subscription failed: %v", code, err)
		return
	}

	h.mu.Lock()
	h.unsubs[code] = unsub
	h.mu.Unlock()
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Broadcast sends an arbitrary typed message to everyone in a session.
func (h *Hub) Broadcast(code string, msgType MessageType, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.broadcast(code, &Message{Type: msgType, Payload: data})
}

func (h *Hub) broadcast(code string, msg *Message) {
	data, _ := json.Marshal(msg)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.conns[code] {
		select {
		case conn.Send <- data:
		default:
			// Drop message if buffer full
		}
	}
}
