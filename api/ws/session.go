package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Session is one WebSocket connection, either a packet subscriber or a
// capture client feeding events.
type Session struct {
	ID     string
	Source string // ingest token source, "" for subscribers

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	closeOnce sync.Once
	logger    *zap.Logger
}

// NewSession wraps conn and starts its write goroutine. A nil conn gives a
// detached session, used by tests.
func NewSession(conn *websocket.Conn, source string, bufSize int, logger *zap.Logger) *Session {
	if bufSize <= 0 {
		bufSize = sendChanBuf
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		ID:       uuid.NewString(),
		Source:   source,
		Conn:     conn,
		SendChan: make(chan []byte, bufSize),
		Done:     make(chan struct{}),
	}
	s.logger = logger.With(zap.String("session", s.ID))
	if conn != nil {
		go s.writePump()
	}
	return s
}

// writePump drains SendChan and writes to the connection. It also sends
// periodic pings so dead peers are noticed by the read deadline.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error", zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues data without blocking. It reports false if the session is
// closed or its buffer is full.
func (s *Session) Send(data []byte) bool {
	if s.IsClosed() {
		return false
	}
	select {
	case s.SendChan <- data:
		return true
	case <-s.Done:
		return false
	default:
		return false
	}
}

// Close signals the writePump to shut down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline pushes the read deadline forward.
func (s *Session) SetReadDeadline() {
	if s.Conn != nil {
		_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	}
}
