package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_GetWithinLifetime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewTTL[string, int](time.Minute, clock)

	c.Set("a", 1)
	clock.Advance(59 * time.Second)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTL_ExpiresAtDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewTTL[string, int](time.Minute, clock)

	c.Set("a", 1)
	clock.Advance(time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be evicted on lookup")
}

func TestTTL_SetResetsLifetime(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewTTL[string, string](time.Minute, clock)

	c.Set("k", "old")
	clock.Advance(50 * time.Second)
	c.Set("k", "new")
	clock.Advance(50 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestTTL_MissingKey(t *testing.T) {
	c := NewTTL[string, int](time.Minute, nil)

	v, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestTTL_Delete(t *testing.T) {
	c := NewTTL[string, int](time.Minute, clockwork.NewFakeClock())
	c.Set("a", 1)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, c.TTL())
}

func TestTTL_ConcurrentAccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewTTL[int, int](time.Second, clock)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i%5, i)
			c.Get(i % 5)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, c.Len())
}
