// Package dashboard exposes a read-only HTTP/WebSocket surface over the
// server's live session state: a JSON snapshot endpoint and a hub that
// pushes the same snapshot to subscribed browsers on an interval. There
// is no signaling here, no offer/answer/ICE exchange — every message
// flows one way, hub to client.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mjpeg-rtsp-streamer/session"
)

// SessionStats is the JSON shape pushed to dashboard clients for a
// single session.
type SessionStats struct {
	ID         uint32 `json:"id"`
	State      string `json:"state"`
	Packets    uint64 `json:"packets_sent"`
	BytesSent  uint64 `json:"bytes_sent"`
}

// Snapshot is the full payload broadcast to every connected client.
type Snapshot struct {
	Timestamp string         `json:"timestamp"`
	Sessions  []SessionStats `json:"sessions"`
}

func snapshotFromManager(m *session.Manager, now time.Time) Snapshot {
	sessions := m.Sessions()
	out := make([]SessionStats, 0, len(sessions))
	for _, s := range sessions {
		packets, bytesSent := s.Stats()
		out = append(out, SessionStats{
			ID:        s.ID,
			State:     s.State().String(),
			Packets:   packets,
			BytesSent: bytesSent,
		})
	}
	return Snapshot{
		Timestamp: now.UTC().Format(time.RFC3339),
		Sessions:  out,
	}
}

// Hub fans a periodic stats snapshot out to every connected WebSocket
// client. Clients never send anything the hub acts on; after the
// upgrade handshake, messages read off the connection are discarded.
type Hub struct {
	manager  *session.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader
	interval time.Duration

	mu      sync.Mutex
	clients map[string]*hubClient

	nextID uint64
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub wires a Hub to a session manager. An interval below 250ms is
// replaced by one second so a misconfigured value can't spin the
// broadcast loop.
func NewHub(manager *session.Manager, interval time.Duration, logger *zap.Logger) *Hub {
	if interval < 250*time.Millisecond {
		interval = time.Second
	}
	return &Hub{
		manager:  manager,
		logger:   logger,
		interval: interval,
		clients:  make(map[string]*hubClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and registers the connection as a
// dashboard subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("dashboard: websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	client := &hubClient{conn: conn, send: make(chan []byte, 8)}
	clientID := fmt.Sprintf("ws-%d", id)
	h.clients[clientID] = client
	h.mu.Unlock()

	h.logger.Info("dashboard client connected", zap.Uint64("client_id", id))

	go h.writePump(clientID, client)
	go h.readPump(clientID, client)
}

// readPump only drains the connection so the client's close and
// control frames are observed; the dashboard protocol has no inbound
// messages for it to act on.
func (h *Hub) readPump(id string, c *hubClient) {
	defer h.removeClient(id)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(id string, c *hubClient) {
	defer func() {
		c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
}

// Broadcast encodes snapshot once and fans it out to every connected
// client, dropping slow clients rather than blocking.
func (h *Hub) Broadcast(snapshot Snapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.Error("dashboard: marshal snapshot", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("dashboard: dropping slow client", zap.String("client_id", id))
			delete(h.clients, id)
			close(c.send)
		}
	}
}

// Run broadcasts a stats snapshot on every tick until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			h.Broadcast(snapshotFromManager(h.manager, now))
		case <-ctx.Done():
			return
		}
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every dashboard client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.conn.Close()
		close(c.send)
		delete(h.clients, id)
	}
}
