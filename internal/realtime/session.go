package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 25 * time.Second
	maxMessageSize = 4096
)

// Session is one websocket connection for one user. Writes are serialized
// through the mutex; gorilla connections allow at most one concurrent writer.
type Session struct {
	ID     string
	UserID string

	conn     *websocket.Conn
	writeMu  sync.Mutex
	lastSeen time.Time
	seenMu   sync.Mutex
}

func newSession(id, userID string, conn *websocket.Conn) *Session {
	return &Session{
		ID:       id,
		UserID:   userID,
		conn:     conn,
		lastSeen: time.Now(),
	}
}

// WriteJSON sends one frame with a write deadline.
func (s *Session) WriteJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *Session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *Session) touch() {
	s.seenMu.Lock()
	s.lastSeen = time.Now()
	s.seenMu.Unlock()
}

func (s *Session) staleSince(cutoff time.Time) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	return s.lastSeen.Before(cutoff)
}

func (s *Session) close() {
	s.conn.Close()
}
