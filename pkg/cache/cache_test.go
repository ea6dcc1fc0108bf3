package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_Expiry(t *testing.T) {
	clk := &clock{now: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)}
	c := New[string](10*time.Minute, WithClock[string](clk.Now))

	c.Set("kospi", "2800")
	v, ok := c.Get("kospi")
	require.True(t, ok)
	assert.Equal(t, "2800", v)

	clk.Advance(9 * time.Minute)
	_, ok = c.Get("kospi")
	assert.True(t, ok)

	clk.Advance(time.Minute)
	_, ok = c.Get("kospi")
	assert.False(t, ok, "entry expires exactly at ttl")
	assert.Equal(t, 1, c.Purge())
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[int](time.Minute)
	var calls atomic.Int32

	load := func(ctx context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return 42, nil
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", load)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	v, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load(), "served from cache")

	c.Invalidate("k")
	_, err = c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := New[int](time.Minute)
	boom := errors.New("boom")
	attempts := 0

	_, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (int, error) {
		attempts++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (int, error) {
		attempts++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, attempts)
}

func TestCache_DisabledTTL(t *testing.T) {
	c := New[int](0)
	c.Set("k", 1)
	_, ok := c.Get("k")
	assert.False(t, ok)
}
