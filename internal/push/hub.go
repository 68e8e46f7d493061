package push

import (
	"net/http"
	"sync"
	"time"

	"bridge-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// StatusUpdate is the message pushed to subscribed clients.
type StatusUpdate struct {
	ConversionID string                  `json:"conversion_id"`
	Status       models.ConversionStatus `json:"status"`
	Timestamp    time.Time               `json:"timestamp"`
}

// Hub pushes conversion status transitions to websocket clients. A client
// connects to /ws/conversions/:id and receives every transition of that
// conversion until it disconnects.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{} // conversion id -> subscribers
	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan StatusUpdate
}

func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// NotifyStatus implements the reconciler's notifier interface. Slow clients
// are dropped rather than blocking the pipeline.
func (h *Hub) NotifyStatus(conversionID string, status models.ConversionStatus) {
	update := StatusUpdate{ConversionID: conversionID, Status: status, Timestamp: time.Now()}

	h.mu.RLock()
	subscribers := h.clients[conversionID]
	h.mu.RUnlock()

	for c := range subscribers {
		select {
		case c.send <- update:
		default:
			logrus.WithField("conversion_id", conversionID).Warn("dropping slow websocket client")
			h.remove(conversionID, c)
		}
	}
}

// Serve upgrades the connection and streams updates for one conversion.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, conversionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan StatusUpdate, 8)}

	h.mu.Lock()
	if h.clients[conversionID] == nil {
		h.clients[conversionID] = make(map[*client]struct{})
	}
	h.clients[conversionID][c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(conversionID, c)
	h.readLoop(conversionID, c)
}

func (h *Hub) writeLoop(conversionID string, c *client) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case update, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(update); err != nil {
				h.remove(conversionID, c)
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(conversionID, c)
				return
			}
		}
	}
}

// readLoop discards inbound frames and detects the disconnect.
func (h *Hub) readLoop(conversionID string, c *client) {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(conversionID, c)
			return
		}
	}
}

func (h *Hub) remove(conversionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subscribers, ok := h.clients[conversionID]; ok {
		if _, present := subscribers[c]; present {
			delete(subscribers, c)
			close(c.send)
			c.conn.Close()
		}
		if len(subscribers) == 0 {
			delete(h.clients, conversionID)
		}
	}
}
