package services

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub pushes state-change notifications to connected clients as a lighter
// alternative to tight polling. Clients treat a notification as "re-poll the
// state endpoint now"; the snapshot itself still comes from GetState, so the
// push channel carries no authority.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	sessions   *SessionService
}

type Client struct {
	hub    *Hub
	socket *websocket.Conn
	send   chan []byte
	code   string
	role   string // "admin", "team" or "spectator"
	name   string
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub(sessions *SessionService) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sessions:   sessions,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client registered for session %s (%s %s) - total clients: %d",
				client.code, client.role, client.name, h.clientCount())

			// Late-sync: replay the mirrored snapshot so a reconnecting
			// client catches up without waiting for the next transition.
			if state := h.sessions.GetCachedState(client.code); state != nil {
				h.sendTo(client, "state_sync", state)
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			log.Printf("Client unregistered from session %s (%s %s) - total clients: %d",
				client.code, client.role, client.name, h.clientCount())
		}
	}
}

func (h *Hub) clientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// BroadcastToSession notifies every client watching one session.
func (h *Hub) BroadcastToSession(code string, messageType string, payload interface{}) {
	if h == nil {
		return
	}

	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message for session %s: %v", messageType, code, err)
		return
	}

	h.mutex.Lock()
	sent := 0
	for client := range h.clients {
		if !strings.EqualFold(client.code, code) {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
	h.mutex.Unlock()

	log.Printf("Broadcast %s to %d clients in session %s", messageType, sent, code)
}

func (h *Hub) sendTo(client *Client, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		log.Printf("Error marshaling %s message: %v", messageType, err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// RegisterClient adopts an upgraded websocket connection and starts its
// pumps. The connection is closed when either pump exits.
func (h *Hub) RegisterClient(conn *websocket.Conn, code, role, name string) {
	client := &Client{
		hub:    h,
		socket: conn,
		send:   make(chan []byte, 16),
		code:   NormalizeCode(code),
		role:   role,
		name:   name,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.socket.Close()
	}()
	c.socket.SetReadLimit(4096)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// Clients only listen on this channel; drain and ignore anything
		// they send.
		if _, _, err := c.socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Websocket error for session %s: %v", c.code, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
