// Package live streams accepted fixes to WebSocket subscribers. The hub is
// best effort: a subscriber that cannot keep up is dropped rather than
// allowed to stall the broadcast loop.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appconfig "fieldtrack/config"
	"fieldtrack/internal/fix"
	"fieldtrack/logger"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	config appconfig.LiveConfig
	log    *logger.Log

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu      sync.Mutex
	clients map[*client]struct{}
	running bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(cfg appconfig.LiveConfig) *Hub {
	return &Hub{
		config:     cfg,
		log:        logger.GetLogger(),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*client]struct{}),
	}
}

func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running = true

	h.wg.Add(1)
	go h.run()

	h.log.WithComponent("live").Info("live hub started")
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.cancel()
	h.mu.Unlock()

	h.wg.Wait()
	h.log.WithComponent("live").Info("live hub stopped")
}

// Publish queues the fixes for all subscribers. Silently drops the update
// when the hub backlog is full so ingest never blocks on slow viewers.
func (h *Hub) Publish(fixes []fix.Fix) {
	if len(fixes) == 0 {
		return
	}
	payload, err := json.Marshal(fixes)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.WithComponent("live").WithFields(logger.Fields{
				"subscribers": len(h.clients),
			}).Debug("subscriber connected")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case payload := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					delete(h.clients, c)
					close(c.send)
					h.log.WithComponent("live").Warn("dropping slow subscriber")
				}
			}
		}
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithComponent("live").WithError(err).Warn("websocket upgrade failed")
		return
	}

	buf := h.config.SendBuffer
	if buf <= 0 {
		buf = sendBufferSize
	}
	c := &client{conn: conn, send: make(chan []byte, buf)}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go c.writeLoop()
	go h.readLoop(c)
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pings and close handshakes are
// processed; subscribers never send application data.
func (h *Hub) readLoop(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
