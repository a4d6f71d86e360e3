package bus

import (
	"context"
	"testing"
	"time"

	"github.com/arung-agamani/wavecast/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOutFidelity(t *testing.T) {
	b := New[int](100)
	sub := b.Subscribe()

	for i := 0; i < 5; i++ {
		b.Publish(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		got, err := sub.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
}

func TestSubscribePositionsAtHead(t *testing.T) {
	b := New[int](100)
	b.Publish(1)
	b.Publish(2)

	// A subscriber attached after these publishes must not see them.
	sub := b.Subscribe()
	b.Publish(3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestLagReportsSkippedCount(t *testing.T) {
	b := New[int](4)
	sub := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := sub.Recv(ctx)
	require.Error(t, err)
	var lagErr *wire.LagError
	require.ErrorAs(t, err, &lagErr)
	assert.Equal(t, uint64(6), lagErr.Skipped)

	// After lagging, the subscriber resumes from the oldest retained message.
	got, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}

func TestSlowConsumerBacklogExceedsEvictionThreshold(t *testing.T) {
	const maxTolerated = 10
	b := New[int](1000)
	sub := b.Subscribe()

	for i := 0; i <= maxTolerated; i++ {
		b.Publish(i)
	}

	assert.Greater(t, sub.Len(), maxTolerated)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New[int](100)
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	assert.True(t, b.HasSubscribers())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
	assert.False(t, b.HasSubscribers())
}
