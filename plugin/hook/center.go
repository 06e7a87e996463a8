package hook

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrInterrupt stops the chain. For BeforeBroadcast it also cancels the
// publication.
var ErrInterrupt = errors.New("hook interrupted")

// Fn handles a hook point. It returns the (possibly replaced) data, or
// ErrInterrupt to stop later handlers.
type Fn func(ctx context.Context, event string, data any) (any, error)

type entry struct {
	priority int
	name     string
	fn       Fn
}

// Center holds the handlers registered for each hook point.
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]entry
}

func NewCenter() *Center {
	return &Center{hooks: make(map[string][]entry)}
}

// Register adds fn for event. Lower priority runs first; equal priorities
// run in registration order.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.hooks[event], entry{priority: priority, name: name, fn: fn})
	slices.SortStableFunc(entries, func(a, b entry) int { return a.priority - b.priority })
	c.hooks[event] = entries
}

// Trigger runs the handlers for event in priority order, threading data
// through them. ErrInterrupt stops the chain and is returned as is. Other
// handler errors do not stop the chain; they are joined and returned at
// the end.
func (c *Center) Trigger(ctx context.Context, event string, data any) (any, error) {
	c.mu.RLock()
	entries := slices.Clone(c.hooks[event])
	c.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		data = out
	}
	return data, errors.Join(errs...)
}

// Hook points.
const (
	// BeforeBroadcast receives a battle.Packet before it is published.
	BeforeBroadcast = "before_broadcast"
	// OnBattleSummary receives an *export.SavedSummary after the summary file is written.
	OnBattleSummary = "on_battle_summary"
)
