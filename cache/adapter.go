package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/battlerecorder/cache/local"
	cacheredis "github.com/kasuganosora/battlerecorder/cache/redis"
)

// Cache is the KV and sorted-set surface used for the latest summary and
// the DPAV ranking.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRevRange returns members from highest to lowest score, stop inclusive;
	// stop < 0 means to the end.
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)
	// ZKeepTop drops every member ranked below the first n.
	ZKeepTop(ctx context.Context, key string, n int64) error

	Close() error
}

// ScoredMember is one sorted-set entry.
type ScoredMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations. A subscriber whose
// buffer is full misses messages rather than blocking the publisher.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
	// Dropped returns how many deliveries were skipped for full subscribers.
	Dropped() uint64
	Close() error
}

// Config holds configuration for both Redis and the local backend.
type Config struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	LocalGCInterval time.Duration
	LocalPubSubBuf  int
}

// IsNotFound reports whether err is a missing-key error from either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, local.ErrNotFound) || errors.Is(err, cacheredis.ErrNotFound)
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise an in-process cache.
func NewCache(cfg Config) (Cache, error) {
	if cfg.RedisAddr != "" {
		rc, err := cacheredis.NewCache(redisConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &redisCacheAdapter{RedisCache: rc}, nil
	}
	lc, err := local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
	if err != nil {
		return nil, err
	}
	return &localCacheAdapter{LocalCache: lc}, nil
}

// NewPubSub returns a PubSub backed by Redis if RedisAddr is set,
// otherwise an in-process fan-out.
func NewPubSub(cfg Config) (PubSub, error) {
	bufSize := cfg.LocalPubSubBuf
	if bufSize <= 0 {
		bufSize = 256
	}
	if cfg.RedisAddr != "" {
		rps, err := cacheredis.NewPubSub(redisConfig(cfg))
		if err != nil {
			return nil, err
		}
		return &redisPubSubAdapter{ps: rps, buf: bufSize}, nil
	}
	return &localPubSubAdapter{ps: local.NewPubSub(bufSize), buf: bufSize}, nil
}

func redisConfig(cfg Config) cacheredis.Config {
	return cacheredis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// ---- adapters to bridge sub-package types to this package's ----

type localCacheAdapter struct {
	*local.LocalCache
}

func (a *localCacheAdapter) ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	entries, err := a.LocalCache.ZRevRange(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, len(entries))
	for i, e := range entries {
		out[i] = ScoredMember{Member: e.Member, Score: e.Score}
	}
	return out, nil
}

type redisCacheAdapter struct {
	*cacheredis.RedisCache
}

func (a *redisCacheAdapter) ZRevRange(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	entries, err := a.RedisCache.ZRevRange(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, len(entries))
	for i, e := range entries {
		out[i] = ScoredMember{Member: e.Member, Score: e.Score}
	}
	return out, nil
}

type localPubSubAdapter struct {
	ps      *local.LocalPubSub
	buf     int
	dropped atomic.Uint64
}

func (a *localPubSubAdapter) Close() error { return nil }

func (a *localPubSubAdapter) Dropped() uint64 { return a.ps.Dropped() + a.dropped.Load() }

func (a *localPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *localPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	localCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, a.buf)
	go func() {
		defer close(out)
		for msg := range localCh {
			select {
			case out <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
			default:
				a.dropped.Add(1)
			}
		}
	}()
	return out, cancel, nil
}

type redisPubSubAdapter struct {
	ps      *cacheredis.RedisPubSub
	buf     int
	dropped atomic.Uint64
}

func (a *redisPubSubAdapter) Close() error { return a.ps.Close() }

func (a *redisPubSubAdapter) Dropped() uint64 { return a.dropped.Load() }

func (a *redisPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *redisPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	redisCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, a.buf)
	go func() {
		defer close(out)
		for msg := range redisCh {
			select {
			case out <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
			default:
				a.dropped.Add(1)
			}
		}
	}()
	return out, cancel, nil
}
