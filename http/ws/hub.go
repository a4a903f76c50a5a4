package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/daniellavrushin/lure/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Upgrader is shared by every hub. The web server binds to loopback by
// default, so any origin is accepted.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	ws   *websocket.Conn
	send chan []byte
}

// Hub fans text messages out to every connected websocket client. Slow
// clients miss messages rather than stall the publisher.
type Hub struct {
	name string

	mu      sync.RWMutex
	clients map[*client]struct{}
	in      chan []byte
	reg     chan *client
	unreg   chan *client
	stop    chan struct{}
	once    sync.Once
}

func NewHub(name string) *Hub {
	h := &Hub{
		name:    name,
		clients: map[*client]struct{}{},
		in:      make(chan []byte, 1024),
		reg:     make(chan *client),
		unreg:   make(chan *client),
		stop:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.reg:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.in:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast never blocks; the message is dropped when the hub is backed up
// or stopped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case <-h.stop:
	case h.in <- msg:
	default:
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// ServeHTTP upgrades the request and streams hub messages until the client
// goes away or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade %s WebSocket: %v", h.name, err)
		return
	}

	c := &client{ws: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.reg <- c:
	case <-h.stop:
		conn.Close()
		return
	}
	log.Tracef("%s WebSocket client connected: %s", h.name, r.RemoteAddr)

	go c.writePump()
	c.readPump(h)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.stop:
		}
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Tracef("WebSocket error: %v", err)
			}
			break
		}
	}
}
