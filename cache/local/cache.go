package local

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a key or member does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	data     string
	expireAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// ScoredMember is one sorted-set entry.
type ScoredMember struct {
	Member string
	Score  float64
}

// zset keeps members ordered by score descending; ties keep insertion order.
type zset struct {
	mu      sync.Mutex
	entries []ScoredMember
}

// LocalCache is an in-process string KV plus sorted sets.
type LocalCache struct {
	kv    sync.Map // key → *entry
	zsets sync.Map // key → *zset

	gcInterval time.Duration
	stopOnce   sync.Once
	stopGC     chan struct{}
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		gcInterval: interval,
		stopGC:     make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the background GC goroutine. Safe to call more than once.
func (c *LocalCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopGC) })
	return nil
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.kv.Range(func(k, v any) bool {
				if v.(*entry).expired(now) {
					c.kv.Delete(k)
				}
				return true
			})
		case <-c.stopGC:
			return
		}
	}
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.kv.Load(key)
	if !ok {
		return "", ErrNotFound
	}
	e := v.(*entry)
	if e.expired(time.Now()) {
		c.kv.Delete(key)
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := &entry{data: value}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	c.kv.Store(key, e)
	return nil
}

// ---- ZSet ----

func (c *LocalCache) zset(key string) *zset {
	v, _ := c.zsets.LoadOrStore(key, &zset{})
	return v.(*zset)
}

func (c *LocalCache) ZAdd(_ context.Context, key string, score float64, member string) error {
	z := c.zset(key)
	z.mu.Lock()
	defer z.mu.Unlock()
	for i := range z.entries {
		if z.entries[i].Member == member {
			z.entries = append(z.entries[:i], z.entries[i+1:]...)
			break
		}
	}
	z.entries = append(z.entries, ScoredMember{Member: member, Score: score})
	sort.SliceStable(z.entries, func(a, b int) bool { return z.entries[a].Score > z.entries[b].Score })
	return nil
}

func (c *LocalCache) ZRevRange(_ context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	z := c.zset(key)
	z.mu.Lock()
	defer z.mu.Unlock()
	n := int64(len(z.entries))
	if start < 0 {
		start = 0
	}
	if start >= n {
		return nil, nil
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if stop < start {
		return nil, nil
	}
	out := make([]ScoredMember, stop-start+1)
	copy(out, z.entries[start:stop+1])
	return out, nil
}

func (c *LocalCache) ZKeepTop(_ context.Context, key string, n int64) error {
	if n < 0 {
		n = 0
	}
	z := c.zset(key)
	z.mu.Lock()
	defer z.mu.Unlock()
	if int64(len(z.entries)) > n {
		z.entries = z.entries[:n]
	}
	return nil
}
