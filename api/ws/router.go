package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"go.uber.org/zap"
)

// ErrReplay marks an envelope whose seq is not above the last one seen on
// the connection.
var ErrReplay = errors.New("ws: replayed or out-of-order envelope")

// HandlerFunc processes one inbound envelope payload.
type HandlerFunc func(ctx context.Context, s *Session, typ string, payload json.RawMessage) error

// Router dispatches inbound envelopes to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	fallback HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Fallback handles types with no registered handler.
func (r *Router) Fallback(fn HandlerFunc) {
	r.fallback = fn
}

// NewEventRouter routes every battle event type, and unknown types, into
// the engine.
func NewEventRouter(engine *battle.Engine, logger *zap.Logger) *Router {
	r := NewRouter(logger)
	apply := func(ctx context.Context, _ *Session, typ string, payload json.RawMessage) error {
		return engine.ApplyRaw(ctx, typ, payload)
	}
	for _, typ := range battle.EventTypes() {
		r.On(typ, apply)
	}
	r.Fallback(apply)
	return r
}

// Dispatch decodes raw bytes, validates seq, and invokes the handler.
func (r *Router) Dispatch(s *Session, raw []byte) error {
	var env battle.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.logger.Warn("malformed envelope",
			zap.String("session", s.ID),
			zap.Error(err))
		return err
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if env.Seq != 0 && env.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order envelope",
			zap.String("session", s.ID),
			zap.Uint64("seq", env.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return ErrReplay
	}
	if env.Seq != 0 {
		s.LastSeq = env.Seq
	}

	s.TraceID = uuid.NewString()

	fn, ok := r.handlers[env.Type]
	if !ok {
		fn = r.fallback
	}
	if fn == nil {
		r.logger.Debug("unhandled envelope type",
			zap.String("type", env.Type),
			zap.String("session", s.ID))
		return nil
	}

	err := fn(context.Background(), s, env.Type, env.Payload)
	if err != nil {
		r.logger.Debug("envelope not applied",
			zap.String("type", env.Type),
			zap.String("session", s.ID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
	}
	return err
}
