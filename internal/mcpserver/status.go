package mcpserver

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/marcus-ai/marcus/internal/events"
)

// statusSendBufferSize bounds how many undelivered events queue per
// connected client before it is dropped (mirrors events.Bus's own
// backpressure posture).
const statusSendBufferSize = 256

// StatusHub fans coordination events out to connected live-status
// websocket clients.
type StatusHub struct {
	mu         sync.RWMutex
	clients    map[*statusClient]bool
	register   chan *statusClient
	unregister chan *statusClient
	allowed    []string
	log        *log.Logger
}

type statusClient struct {
	hub  *StatusHub
	conn *websocket.Conn
	send chan []byte
}

// NewStatusHub builds a hub. allowedOrigins supplements the always-allowed
// localhost origins for the websocket upgrade's Origin check.
func NewStatusHub(allowedOrigins []string) *StatusHub {
	return &StatusHub{
		clients:    make(map[*statusClient]bool),
		register:   make(chan *statusClient),
		unregister: make(chan *statusClient),
		allowed:    allowedOrigins,
		log:        log.New(os.Stderr, "[STATUSFEED] ", log.LstdFlags),
	}
}

// Run drives the hub's register/unregister/broadcast loop until ch closes.
func (h *StatusHub) Run(ch <-chan events.Event) {
	for {
		select {
		case c, ok := <-h.register:
			if !ok {
				return
			}
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(evt)
		}
	}
}

func (h *StatusHub) broadcast(evt events.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Printf("failed to marshal event for broadcast: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// RegisterRoutes mounts the live-status websocket endpoint on r.
func (h *StatusHub) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/status/feed", h.handleUpgrade)
}

var statusUpgrader = websocket.Upgrader{}

func (h *StatusHub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	statusUpgrader.CheckOrigin = h.checkOrigin
	conn, err := statusUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("upgrade failed: %v", err)
		return
	}

	client := &statusClient{hub: h, conn: conn, send: make(chan []byte, statusSendBufferSize)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// checkOrigin allows requests with no Origin header, localhost origins at
// any port, and origins on the configured allowlist. Any other origin is
// rejected, including the server's own host when that is not localhost.
func (h *StatusHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := originURL.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	for _, allowed := range h.allowed {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (c *statusClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// the feed is one-directional; inbound frames are discarded
	}
}

func (c *statusClient) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
