package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/kasuganosora/battlerecorder/broadcast"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"go.uber.org/zap"
)

// Hub holds the connected packet subscribers and relays the broadcast
// stream to them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sink    *broadcast.Sink
	version string
	logger  *zap.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub(sink *broadcast.Sink, version string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		sink:     sink,
		version:  version,
		logger:   logger,
	}
}

// Run relays broadcast packets to every session until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	msgs, cancel, err := h.sink.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			h.Broadcast([]byte(msg.Payload))
		case <-ctx.Done():
			return nil
		}
	}
}

// Register greets s with a Connected packet and adds it to the hub.
func (h *Hub) Register(s *Session) {
	greeting, err := json.Marshal(battle.ConnectedPacket(h.version))
	if err == nil {
		s.Send(greeting)
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("subscriber connected", zap.String("session", s.ID), zap.Int("subscribers", n))
}

func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	n := len(h.sessions)
	h.mu.Unlock()
	if ok {
		h.logger.Info("subscriber disconnected", zap.String("session", s.ID), zap.Int("subscribers", n))
	}
}

// Broadcast queues data on every session. Sessions with a full buffer miss
// the packet.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.sessions {
		if s.Send(data) {
			h.delivered.Add(1)
			continue
		}
		h.dropped.Add(1)
		if !s.IsClosed() {
			h.logger.Warn("subscriber buffer full, dropping packet", zap.String("session", id))
		}
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HubStats counts deliveries to WebSocket subscribers.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	return HubStats{
		Subscribers: h.Count(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}
