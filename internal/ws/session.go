package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 * 1024
	sendBufferSize = 64
)

var errSendBufferFull = errors.New("session send buffer full")

// Session wraps one websocket connection. All writes go through the
// buffered send channel and the write pump; nothing else may write to
// the underlying connection.
type Session struct {
	connID string
	conn   *websocket.Conn

	userID int

	// displayName is written only by the session's own read loop
	// (userConnect) and read when the session routes its own events.
	nameMu      sync.RWMutex
	displayName string

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}

	connectedAt time.Time
}

func newSession(connID string, conn *websocket.Conn, userID int, displayName string) *Session {
	return &Session{
		connID:      connID,
		conn:        conn,
		userID:      userID,
		displayName: displayName,
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// UserID returns the authenticated user, or zero when identity decode
// failed at handshake time.
func (s *Session) UserID() int { return s.userID }

// DisplayName returns the name announced via userConnect, falling back
// to the handshake identity.
func (s *Session) DisplayName() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.displayName
}

func (s *Session) setDisplayName(name string) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	s.displayName = name
}

// Send queues an event frame for the write pump. A full buffer counts
// as a dead client and closes the session.
func (s *Session) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(protocol.Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return errors.New("session closed")
	default:
		s.close()
		return errSendBufferFull
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("websocket write error conn=%s: %v", s.connID, err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
