package push

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/service-dispatch/internal/notify"
)

var ErrNoSession = errors.New("no ws session")

// WSSession is one connected provider socket. Writes are serialized because
// gorilla/websocket allows a single concurrent writer.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(in notify.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(in)
}

// WSRegistry holds live provider sessions and delivers intents to them.
// It is the preferred sink; recipients without a session get ErrNoSession
// so a fallback sink can take over.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession)}
}

func (r *WSRegistry) Add(providerID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[providerID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, providerID)
}

func (r *WSRegistry) Deliver(ctx context.Context, in notify.Intent) error {
	r.mu.RLock()
	s, ok := r.sessions[in.Recipient]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(in)
}
