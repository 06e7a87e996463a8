package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlerecorder/broadcast"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Handler streams battle packets as server-sent events.
type Handler struct {
	sink      *broadcast.Sink
	version   string
	logger    *zap.Logger
	keepalive time.Duration
	clients   atomic.Int64
}

func NewHandler(sink *broadcast.Sink, version string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sink: sink, version: version, logger: logger, keepalive: keepaliveInterval}
}

// Count returns the number of connected SSE clients.
func (h *Handler) Count() int { return int(h.clients.Load()) }

// ServeSSE handles GET /sse. Each packet becomes one event named after the
// packet type, with the full packet JSON as data.
func (h *Handler) ServeSSE(c *gin.Context) {
	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.sink.Subscribe(subCtx)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}
	defer unsub()

	h.clients.Add(1)
	defer h.clients.Add(-1)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	greeting, _ := json.Marshal(battle.ConnectedPacket(h.version))
	writeEvent(c, battle.PacketConnected, string(greeting))

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			env, err := broadcast.PeekEnvelope(msg.Payload)
			if err != nil {
				h.logger.Warn("sse: undecodable packet", zap.Error(err))
				continue
			}
			writeEvent(c, env.Type, msg.Payload)

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeEvent(c *gin.Context, event, data string) {
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}
