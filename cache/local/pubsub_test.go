package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSubBasic(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "battle")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "battle", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "battle", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestPubSubUnsubscribe(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "battle")
	require.NoError(t, err)

	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")

	assert.NoError(t, ps.Publish(ctx, "battle", "msg"))
}

func TestPubSubMultipleSubscribers(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch1, cancel1, _ := ps.Subscribe(ctx, "battle")
	ch2, cancel2, _ := ps.Subscribe(ctx, "battle")
	defer cancel1()
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "battle", "world"))

	for _, ch := range []<-chan *Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "world", msg.Payload)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("subscriber did not receive message")
		}
	}
}

func TestPubSubSlowSubscriberDrops(t *testing.T) {
	ps := NewPubSub(1)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "battle")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "battle", "1"))
	require.NoError(t, ps.Publish(ctx, "battle", "2"))

	msg := <-ch
	assert.Equal(t, "1", msg.Payload)
	assert.Equal(t, uint64(1), ps.Dropped())
}
