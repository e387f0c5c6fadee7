package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stolenhq/notify/internal/models"
)

// session wraps one websocket connection with a write lock. gorilla/websocket
// allows at most one concurrent writer per connection, and Publish may be
// called from any dispatch goroutine.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) write(update models.RealTimeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(update)
}

// Hub fans in-app deliveries out to every live subscription a user holds:
// websocket sessions and in-process clients alike. Each user's updates are
// published in dispatch order; the hub never reorders.
type Hub struct {
	mu      sync.RWMutex
	sockets map[string]map[*websocket.Conn]*session
	clients map[string][]*Client
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		sockets: make(map[string]map[*websocket.Conn]*session),
		clients: make(map[string][]*Client),
		log:     log,
	}
}

// Attach registers a websocket session for the user. The caller owns the
// read loop and must Detach when it exits.
func (h *Hub) Attach(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sockets[userID] == nil {
		h.sockets[userID] = make(map[*websocket.Conn]*session)
	}
	h.sockets[userID][conn] = &session{conn: conn}
	h.log.Info("realtime subscriber attached", zap.String("user_id", userID))
}

func (h *Hub) Detach(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sessions, ok := h.sockets[userID]; ok {
		delete(sessions, conn)
		if len(sessions) == 0 {
			delete(h.sockets, userID)
		}
	}
}

// Subscribe registers an in-process client to receive the user's updates.
func (h *Hub) Subscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.UserID()] = append(h.clients[c.UserID()], c)
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.clients[c.UserID()]
	for i, sub := range subs {
		if sub == c {
			h.clients[c.UserID()] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.clients[c.UserID()]) == 0 {
		delete(h.clients, c.UserID())
	}
}

// SubscriberCount reports live subscriptions for the user, sockets plus
// in-process clients.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sockets[userID]) + len(h.clients[userID])
}

// Publish delivers one update to every subscription the user holds. A dead
// socket is dropped; it never blocks other subscribers.
func (h *Hub) Publish(userID string, update models.RealTimeUpdate) error {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sockets[userID]))
	for _, s := range h.sockets[userID] {
		sessions = append(sessions, s)
	}
	clients := append([]*Client(nil), h.clients[userID]...)
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.write(update); err != nil {
			h.log.Warn("dropping dead realtime socket",
				zap.String("user_id", userID),
				zap.Error(err))
			s.conn.Close()
			h.Detach(userID, s.conn)
		}
	}
	for _, c := range clients {
		c.AddUpdate(update)
	}
	return nil
}
