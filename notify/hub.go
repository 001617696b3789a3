package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"TableDetFront/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

type subscription struct {
	session string
	conn    *websocket.Conn
}

type message struct {
	session string
	payload []byte
}

// Hub fans notification events out to the websockets of each session.
type Hub struct {
	clients    map[string]map[*websocket.Conn]bool
	broadcast  chan message
	register   chan subscription
	unregister chan subscription
	done       chan struct{}
	mutex      sync.RWMutex
	log        *zap.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]bool),
		broadcast:  make(chan message, 64),
		register:   make(chan subscription),
		unregister: make(chan subscription),
		done:       make(chan struct{}),
		log:        logger.Named("notify"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case sub := <-h.register:
			h.mutex.Lock()
			if h.clients[sub.session] == nil {
				h.clients[sub.session] = make(map[*websocket.Conn]bool)
			}
			h.clients[sub.session][sub.conn] = true
			h.mutex.Unlock()
			h.log.Debug("client connected", zap.String("session", sub.session), zap.Int("total", h.ClientCount()))

		case sub := <-h.unregister:
			h.drop(sub.session, sub.conn)

		case msg := <-h.broadcast:
			h.mutex.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients[msg.session]))
			for conn := range h.clients[msg.session] {
				conns = append(conns, conn)
			}
			h.mutex.RUnlock()
			for _, conn := range conns {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					h.log.Warn("error sending notification", zap.Error(err))
					h.drop(msg.session, conn)
				}
			}
		}
	}
}

// Register returns false once the hub has stopped.
func (h *Hub) Register(session string, conn *websocket.Conn) bool {
	select {
	case h.register <- subscription{session: session, conn: conn}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(session string, conn *websocket.Conn) {
	select {
	case h.unregister <- subscription{session: session, conn: conn}:
	case <-h.done:
		_ = conn.Close()
	}
}

// Publish queues an event for the session. Events are dropped when the
// queue is full; banners are also rendered on the next page load.
func (h *Hub) Publish(session string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal notification", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- message{session: session, payload: payload}:
	default:
		h.log.Warn("notification queue full, dropping event", zap.String("session", session))
	}
}

// Forget closes every socket of a session, used when the session expires.
func (h *Hub) Forget(session string) {
	h.mutex.Lock()
	conns := h.clients[session]
	delete(h.clients, session)
	h.mutex.Unlock()
	for conn := range conns {
		_ = conn.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}

func (h *Hub) drop(session string, conn *websocket.Conn) {
	h.mutex.Lock()
	if conns, ok := h.clients[session]; ok {
		if _, ok := conns[conn]; ok {
			delete(conns, conn)
			_ = conn.Close()
		}
		if len(conns) == 0 {
			delete(h.clients, session)
		}
	}
	h.mutex.Unlock()
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for session, conns := range h.clients {
		for conn := range conns {
			_ = conn.Close()
		}
		delete(h.clients, session)
	}
}
