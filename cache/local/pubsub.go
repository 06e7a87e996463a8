package local

import (
	"context"
	"sync"
	"sync/atomic"
)

// Message is an in-process pub/sub message.
type Message struct {
	Channel string
	Payload string
}

type subscriber struct {
	ch chan *Message
}

// LocalPubSub is an in-process fan-out pub/sub. Slow subscribers lose
// messages instead of blocking Publish.
type LocalPubSub struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	bufSize     int
	dropped     atomic.Uint64
}

// NewPubSub creates a LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subscribers: make(map[string][]*subscriber),
		bufSize:     bufSize,
	}
}

// Publish sends a message to all current subscribers of channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &Message{Channel: channel, Payload: message}
	// The read lock is held while sending so cancel cannot close a channel
	// under us.
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, s := range ps.subscribers[channel] {
		select {
		case s.ch <- msg:
		default:
			ps.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe returns one channel receiving messages from all given channels,
// and a cancel function that unsubscribes and closes it.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *Message, func(), error) {
	s := &subscriber{ch: make(chan *Message, ps.bufSize)}

	ps.mu.Lock()
	for _, c := range channels {
		ps.subscribers[c] = append(ps.subscribers[c], s)
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, c := range channels {
				list := ps.subscribers[c]
				for j, sub := range list {
					if sub == s {
						ps.subscribers[c] = append(list[:j:j], list[j+1:]...)
						break
					}
				}
				if len(ps.subscribers[c]) == 0 {
					delete(ps.subscribers, c)
				}
			}
			close(s.ch)
		})
	}
	return s.ch, cancel, nil
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (ps *LocalPubSub) Dropped() uint64 {
	return ps.dropped.Load()
}
