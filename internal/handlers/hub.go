package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/example/ytfetch/internal/models"
)

const (
	broadcastBuffer = 256
	writeWait       = 5 * time.Second
)

// Hub fans progress events out to every connected websocket client.
type Hub struct {
	upgrader  websocket.Upgrader
	broadcast chan models.DownloadProgress

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub creates a hub. Call Run to start delivering messages.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		broadcast: make(chan models.DownloadProgress, broadcastBuffer),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run delivers published events until ctx is cancelled, then closes all clients.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return nil
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteJSON(msg); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event. It never blocks; events are dropped when the buffer is full.
func (h *Hub) Publish(p models.DownloadProgress) {
	select {
	case h.broadcast <- p:
	default:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WS Upgrade Error:", err)
		return
	}
	h.mu.Lock()
	h.clients[ws] = true
	h.mu.Unlock()

	// clients never send anything; reading only detects the close
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				h.remove(ws)
				return
			}
		}
	}()
}

func (h *Hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ws] {
		ws.Close()
		delete(h.clients, ws)
	}
}
