// Package ws maintains the set of realtime log-feed subscribers and
// broadcasts events to them.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// Manager owns the subscriber set. All mutation goes through Attach, Detach,
// and the dead-connection sweep inside Broadcast.
type Manager struct {
	mu     sync.RWMutex
	conns  []*websocket.Conn
	logger *slog.Logger
}

// NewManager creates an empty subscriber registry.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger}
}

// HandleWS upgrades the connection, attaches it, and blocks reading inbound
// frames until the client goes away. Inbound messages carry no meaning; the
// read loop only serves as a liveness check.
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	m.Attach(conn)
	defer func() {
		m.Detach(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Attach registers an upgraded connection.
func (m *Manager) Attach(conn *websocket.Conn) {
	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
}

// Detach removes a connection from the set. Detaching an unknown connection
// is a no-op.
func (m *Manager) Detach(conn *websocket.Conn) {
	m.mu.Lock()
	m.remove(conn)
	m.mu.Unlock()
}

// remove deletes conn from the slice. Caller holds the lock.
func (m *Manager) remove(conn *websocket.Conn) {
	for i, c := range m.conns {
		if c == conn {
			m.conns = append(m.conns[:i], m.conns[i+1:]...)
			return
		}
	}
}

// Broadcast sends message to every subscriber as a text frame. Connections
// that fail the send are closed and swept from the set before returning.
// The lock is held for the whole send: websocket connections allow only one
// concurrent writer, and the write deadline bounds how long a slow
// subscriber can stall the others.
func (m *Manager) Broadcast(message []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dead []*websocket.Conn
	for _, conn := range m.conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		m.remove(conn)
		conn.Close()
	}
}

// Count returns the number of attached subscribers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
