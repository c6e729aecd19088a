package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	c := NewTTL[string](time.Minute, 0)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
	assert.Equal(t, 1, c.Size())
}

func TestExpiredEntryEvictedOnGet(t *testing.T) {
	c := NewTTL[int](10*time.Millisecond, 0)
	c.Set("k", 42)

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestSetResetsTTL(t *testing.T) {
	c := NewTTL[int](30*time.Millisecond, 0)
	c.Set("k", 1)
	time.Sleep(20 * time.Millisecond)
	c.Set("k", 2)
	time.Sleep(20 * time.Millisecond)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestDelete(t *testing.T) {
	c := NewTTL[int](time.Minute, 0)
	c.Set("k", 1)

	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCleanupLoopSweepsExpired(t *testing.T) {
	c := NewTTL[int](10*time.Millisecond, 5*time.Millisecond)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), c.Stats().Evictions)
}

func TestStatsTrackHitsAndMisses(t *testing.T) {
	c := NewTTL[int](time.Minute, 0)
	c.Set("k", 1)

	c.Get("k")
	c.Get("k")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := NewTTL[int](time.Minute, time.Minute)
	c.Close()
	c.Close()

	// Still usable after Close
	c.Set("k", 1)
	_, ok := c.Get("k")
	assert.True(t, ok)
}
