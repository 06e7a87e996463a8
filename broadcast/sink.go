// Package broadcast fans engine packets out to subscribers through the
// cache pub/sub backend.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/kasuganosora/battlerecorder/cache"
	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/kasuganosora/battlerecorder/plugin/hook"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel packets go out on.
const DefaultChannel = "battle"

// Config configures a Sink.
type Config struct {
	PubSub  cache.PubSub
	Channel string       // "" = DefaultChannel
	Hooks   *hook.Center // optional
	Logger  *zap.Logger
}

// Sink publishes battle packets as JSON. It implements battle.Sink.
type Sink struct {
	ps      cache.PubSub
	channel string
	hooks   *hook.Center
	logger  *zap.Logger

	published  atomic.Uint64
	suppressed atomic.Uint64
}

var _ battle.Sink = (*Sink)(nil)

func NewSink(cfg Config) *Sink {
	s := &Sink{
		ps:      cfg.PubSub,
		channel: cfg.Channel,
		hooks:   cfg.Hooks,
		logger:  cfg.Logger,
	}
	if s.channel == "" {
		s.channel = DefaultChannel
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Sink) Channel() string { return s.channel }

// Publish runs the BeforeBroadcast hook and publishes the result. A hook
// returning hook.ErrInterrupt cancels the publication without error.
func (s *Sink) Publish(ctx context.Context, pkt battle.Packet) error {
	if s.hooks != nil {
		out, err := s.hooks.Trigger(ctx, hook.BeforeBroadcast, pkt)
		if errors.Is(err, hook.ErrInterrupt) {
			s.suppressed.Add(1)
			return nil
		}
		if err != nil {
			s.logger.Warn("before broadcast hook", zap.String("type", pkt.Type), zap.Error(err))
		}
		if p, ok := out.(battle.Packet); ok {
			pkt = p
		}
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return fmt.Errorf("marshal %s packet: %w", pkt.Type, err)
	}
	if err := s.ps.Publish(ctx, s.channel, string(data)); err != nil {
		return fmt.Errorf("publish %s packet: %w", pkt.Type, err)
	}
	s.published.Add(1)
	return nil
}

// Subscribe returns the raw JSON packet stream and a cancel function.
func (s *Sink) Subscribe(ctx context.Context) (<-chan *cache.Message, func(), error) {
	return s.ps.Subscribe(ctx, s.channel)
}

// Published returns how many packets reached the pub/sub backend.
func (s *Sink) Published() uint64 { return s.published.Load() }

// Suppressed returns how many packets a hook cancelled.
func (s *Sink) Suppressed() uint64 { return s.suppressed.Load() }

// Dropped returns how many packet deliveries the pub/sub backend skipped
// because a subscriber fell behind.
func (s *Sink) Dropped() uint64 { return s.ps.Dropped() }

// Suppress registers a BeforeBroadcast hook that drops the listed packet
// types. Error packets can be suppressed like any other.
func Suppress(hooks *hook.Center, types []string) {
	if len(types) == 0 {
		return
	}
	blocked := slices.Clone(types)
	hooks.Register(hook.BeforeBroadcast, 0, "suppress", func(_ context.Context, _ string, data any) (any, error) {
		if pkt, ok := data.(battle.Packet); ok && slices.Contains(blocked, pkt.Type) {
			return data, hook.ErrInterrupt
		}
		return data, nil
	})
}

// Envelope is the part of a published packet readers need for routing.
type Envelope struct {
	Seq  uint64 `json:"seq"`
	Type string `json:"type"`
}

// PeekEnvelope decodes seq and type from a published packet.
func PeekEnvelope(payload string) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal([]byte(payload), &env)
	return env, err
}
