// Package notify carries domain events out of the process: live websocket
// sessions for connected rider/driver apps and a webhook for backends.
// Actual delivery mechanics stay outside the dispatch core; both notifiers
// are plain event-bus listeners.
package notify

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Notification is the wire shape pushed to sessions and webhooks.
type Notification struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// WSSession is one connected client.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) send(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(n)
}

// WSNotifier holds client sessions keyed by user id and broadcasts every
// domain event to all of them, mirroring the in-process observer contract.
type WSNotifier struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSNotifier(logger *slog.Logger) *WSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSNotifier{sessions: make(map[string]*WSSession), logger: logger}
}

func (r *WSNotifier) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = &WSSession{conn: conn}
}

func (r *WSNotifier) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// OnEvent implements events.Listener. A dead session is dropped; it must
// never stall dispatch.
func (r *WSNotifier) OnEvent(kind, message string) {
	r.mu.RLock()
	sessions := make(map[string]*WSSession, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	r.mu.RUnlock()

	for id, s := range sessions {
		if err := s.send(Notification{Event: kind, Message: message}); err != nil {
			r.logger.Warn("ws send failed, dropping session", "user", id, "error", err)
			r.Remove(id)
		}
	}
}
