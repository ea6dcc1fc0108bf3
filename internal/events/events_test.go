package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster[RunCompleted](2)
	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	b.Publish(RunCompleted{FundID: "tf-22"})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "tf-22", (<-first).FundID)
	assert.Equal(t, "tf-22", (<-second).FundID)

	b.Unsubscribe(second)
	_, open := <-second
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())

	b.Unsubscribe(second)
	assert.Equal(t, 1, b.Subscribers())
}

func TestBroadcaster_DropsForSlowReaders(t *testing.T) {
	b := NewBroadcaster[int](1)
	ch := b.Subscribe()

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, 1, <-ch)
	assert.Empty(t, ch)
}
