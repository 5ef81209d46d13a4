package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/pathorama/internal/api/middleware"
	"github.com/anstrom/pathorama/internal/host"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/metrics"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriodRatio = 0.9
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio)
	maxMessageSize  = 512
	bufferSize      = 256
	clientQueueSize = 64

	// SinkName labels websocket drops in the sink metrics.
	SinkName = "websocket"
)

// HitMessage is the frame pushed to websocket clients for every batch.
type HitMessage struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Data      host.RowBatch `json:"data"`
}

type hubClient struct {
	conn      *websocket.Conn
	send      chan []byte
	requestID string
}

// HitHub streams published hit batches to websocket clients. It is a
// host.Sink: Publish never blocks and drops batches when the hub is behind.
type HitHub struct {
	logger   *logging.Logger
	recorder metrics.Recorder
	upgrader websocket.Upgrader

	clients    map[*hubClient]struct{}
	broadcast  chan []byte
	register   chan *hubClient
	unregister chan *hubClient
	shutdown   chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

// NewHitHub creates a hub and starts its dispatch loop. recorder may be nil.
func NewHitHub(logger *logging.Logger, recorder metrics.Recorder) *HitHub {
	if logger == nil {
		logger = logging.Default()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	h := &HitHub{
		logger:   logger.WithFields("handler", "websocket"),
		recorder: recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*hubClient]struct{}),
		broadcast:  make(chan []byte, bufferSize),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// Publish implements host.Sink.
func (h *HitHub) Publish(batch host.RowBatch) {
	data, err := json.Marshal(HitMessage{
		Type:      "hits",
		Timestamp: time.Now().UTC(),
		Data:      batch,
	})
	if err != nil {
		h.logger.Error("Failed to marshal hit batch", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.recorder.IncrementSinkDropped(SinkName)
		h.logger.Warn("Hit broadcast channel full, dropping batch", "rows", len(batch))
	}
}

// ServeHTTP upgrades the connection and streams hits until the client leaves.
func (h *HitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", requestID, "error", err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, clientQueueSize), requestID: requestID}
	select {
	case h.register <- c:
	case <-h.shutdown:
		_ = conn.Close()
		return
	}
	h.logger.Info("WebSocket client connected", "request_id", requestID, "remote_addr", r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

// ClientCount returns the number of connected clients.
func (h *HitHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown stops the dispatch loop and disconnects every client.
func (h *HitHub) Shutdown() {
	h.closeOnce.Do(func() { close(h.shutdown) })
	<-h.done
}

func (h *HitHub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.logger.Debug("WebSocket hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; drop it rather than stall the hub.
					h.recorder.IncrementSinkDropped(SinkName)
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// readPump consumes control frames until the connection fails.
func (h *HitHub) readPump(c *hubClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.shutdown:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket unexpected close", "request_id", c.requestID, "error", err)
			}
			return
		}
	}
}

// writePump is the only writer on the connection.
func (h *HitHub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Write failed, closing connection", "request_id", c.requestID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
