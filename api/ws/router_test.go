package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/kasuganosora/battlerecorder/game/battle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func newSession() *Session {
	return NewSession(nil, "test", 16, nop())
}

func makeEnvelope(t *testing.T, seq uint64, msgType string, payload any) []byte {
	t.Helper()
	p, err := json.Marshal(payload)
	require.NoError(t, err)
	b, err := json.Marshal(battle.Envelope{Seq: seq, Type: msgType, Payload: p})
	require.NoError(t, err)
	return b
}

func countingRouter(n *int) *Router {
	r := NewRouter(nop())
	r.On("msg", func(context.Context, *Session, string, json.RawMessage) error {
		*n++
		return nil
	})
	return r
}

func TestRouter_Dispatch_Basic(t *testing.T) {
	var n int
	r := countingRouter(&n)
	require.NoError(t, r.Dispatch(newSession(), makeEnvelope(t, 1, "msg", nil)))
	assert.Equal(t, 1, n)
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(nop())
	assert.Error(t, r.Dispatch(newSession(), []byte("not json")))
}

func TestRouter_Dispatch_UnknownTypeWithoutFallback(t *testing.T) {
	var n int
	r := countingRouter(&n)
	assert.NoError(t, r.Dispatch(newSession(), makeEnvelope(t, 1, "unknown", nil)))
	assert.Zero(t, n)
}

func TestRouter_Dispatch_AntiReplay(t *testing.T) {
	var n int
	r := countingRouter(&n)
	s := newSession()

	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 5, "msg", nil)))
	assert.ErrorIs(t, r.Dispatch(s, makeEnvelope(t, 5, "msg", nil)), ErrReplay)
	assert.ErrorIs(t, r.Dispatch(s, makeEnvelope(t, 3, "msg", nil)), ErrReplay)
	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 100, "msg", nil)))
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(100), s.LastSeq)
}

func TestRouter_Dispatch_SeqZero_SkipsAntiReplay(t *testing.T) {
	var n int
	r := countingRouter(&n)
	s := newSession()
	s.LastSeq = 100

	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 0, "msg", nil)))
	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 0, "msg", nil)))
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(100), s.LastSeq)
}

func TestRouter_TraceIDPerEnvelope(t *testing.T) {
	r := NewRouter(nop())
	var seen []string
	r.On("trace", func(_ context.Context, s *Session, _ string, _ json.RawMessage) error {
		seen = append(seen, s.TraceID)
		return nil
	})
	s := newSession()
	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 1, "trace", nil)))
	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 2, "trace", nil)))
	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.NotEqual(t, seen[0], seen[1])
}

type recordingSink struct{ packets []battle.Packet }

func (s *recordingSink) Publish(_ context.Context, pkt battle.Packet) error {
	s.packets = append(s.packets, pkt)
	return nil
}

// lockedSink is a recordingSink safe for use from server goroutines.
type lockedSink struct {
	mu sync.Mutex
	recordingSink
}

func (s *lockedSink) Publish(ctx context.Context, pkt battle.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordingSink.Publish(ctx, pkt)
}

func TestEventRouter_AppliesInOrder(t *testing.T) {
	sink := &recordingSink{}
	eng := battle.NewEngine(battle.EngineConfig{Sink: sink, Logger: nop()})
	r := NewEventRouter(eng, nop())
	s := newSession()

	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 1, battle.EventSetLineup,
		map[string]any{"avatars": []map[string]any{{"id": 1001, "name": "Acheron"}}})))
	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 2, battle.EventTurnBegin,
		map[string]any{"action_value": 10})))
	require.NoError(t, r.Dispatch(s, makeEnvelope(t, 3, battle.EventDamage,
		map[string]any{"attacker": map[string]any{"uid": 1001, "team": "Player"}, "damage": 100})))

	// A replayed damage envelope must not double count.
	assert.ErrorIs(t, r.Dispatch(s, makeEnvelope(t, 3, battle.EventDamage,
		map[string]any{"attacker": map[string]any{"uid": 1001, "team": "Player"}, "damage": 100})), ErrReplay)

	snap := eng.Store().Snapshot()
	assert.Equal(t, 100.0, snap.TotalDamage)
	assert.Equal(t, 10.0, snap.ActionValue)
	require.Len(t, sink.packets, 3)
	assert.Equal(t, battle.EventDamage, sink.packets[2].Type)
}

func TestEventRouter_UnknownTypeReportsError(t *testing.T) {
	sink := &recordingSink{}
	eng := battle.NewEngine(battle.EngineConfig{Sink: sink, Logger: nop()})
	r := NewEventRouter(eng, nop())

	err := r.Dispatch(newSession(), makeEnvelope(t, 1, "OnMystery", nil))
	assert.ErrorIs(t, err, battle.ErrUnknownEventType)
	require.Len(t, sink.packets, 1)
	assert.Equal(t, battle.PacketError, sink.packets[0].Type)
}
