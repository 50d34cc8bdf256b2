package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, 10)

	c.Set("k", "v", 0)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, 10)

	c.Set("k", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestSetIfAbsent(t *testing.T) {
	c := NewMemoryCache(time.Minute, 10)

	assert.True(t, c.SetIfAbsent("id-1", struct{}{}, 0))
	assert.False(t, c.SetIfAbsent("id-1", struct{}{}, 0), "duplicate within window must lose")

	c.Set("id-2", struct{}{}, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, c.SetIfAbsent("id-2", struct{}{}, 0), "entry past its window is absent again")
}

func TestBoundedEviction(t *testing.T) {
	c := NewMemoryCache(time.Minute, 3)

	c.Set("a", 1, 0)
	time.Sleep(time.Millisecond)
	c.Set("b", 2, 0)
	time.Sleep(time.Millisecond)
	c.Set("c", 3, 0)
	c.Set("d", 4, 0)

	assert.Equal(t, 3, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry evicted first")
}
