package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	signals, err := q.Consume(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, Signal{Kind: "notify", NotificationID: "n-1"}))

	select {
	case sig := <-signals:
		assert.Equal(t, "notify", sig.Kind)
		assert.Equal(t, "n-1", sig.NotificationID)
	case <-time.After(time.Second):
		t.Fatal("no signal received")
	}
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	q := NewInMemory(1)
	signals, err := q.Consume(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-signals:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("consume channel not closed after cancel")
	}
}

func TestInMemoryPublishFullQueueHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Signal{Kind: "notify"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Publish(ctx, Signal{Kind: "notify"})
	assert.ErrorIs(t, err, context.Canceled)
}
