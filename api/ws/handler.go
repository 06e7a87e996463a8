package ws

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	mw "github.com/kasuganosora/battlerecorder/middleware"
	"go.uber.org/zap"
)

// Handler serves the subscriber (GET /ws) and capture (GET /ingest)
// WebSocket endpoints.
type Handler struct {
	hub      *Hub
	router   *Router
	bufSize  int
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket Handler. allowedOrigins controls which
// origins may connect; an empty slice permits all (development only).
func NewHandler(hub *Hub, router *Router, allowedOrigins []string, bufSize int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		hub:     hub,
		router:  router,
		bufSize: bufSize,
		logger:  logger,
	}
	allowed := slices.Clone(allowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return slices.Contains(allowed, r.Header.Get("Origin"))
		},
	}
	return h
}

// ServeWS handles GET /ws: a read-only packet stream that starts with a
// Connected greeting.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	s := NewSession(conn, "", h.bufSize, h.logger)
	h.hub.Register(s)
	defer func() {
		h.hub.Unregister(s)
		s.Close()
	}()
	// Inbound frames are ignored; reading keeps pong and close handling alive.
	h.readPump(s, nil)
}

// ServeIngest handles GET /ingest: each text frame is one event envelope,
// applied in arrival order.
func (h *Handler) ServeIngest(c *gin.Context) {
	source := mw.GetSource(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ingest upgrade failed", zap.Error(err))
		return
	}
	s := NewSession(conn, source, h.bufSize, h.logger)
	h.logger.Info("capture client connected", zap.String("session", s.ID), zap.String("source", source))
	defer func() {
		s.Close()
		h.logger.Info("capture client disconnected", zap.String("session", s.ID), zap.Uint64("last_seq", s.LastSeq))
	}()
	h.readPump(s, func(raw []byte) { _ = h.router.Dispatch(s, raw) })
}

// readPump reads frames until the connection fails or closes.
func (h *Handler) readPump(s *Session, onMessage func([]byte)) {
	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})
	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.String("session", s.ID),
					zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()
		if onMessage != nil {
			onMessage(raw)
		}
	}
}
