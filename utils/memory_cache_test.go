package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_MemoryCache_Expiry(t *testing.T) {
	req := require.New(t)
	cache := NewMemoryCache[int](time.Minute)
	defer cache.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("a", 1)
	cache.SetWithTTL("b", 2, time.Second)

	v, ok := cache.Get("a")
	req.True(ok)
	req.Equal(1, v)

	// When the short entry expires
	now = now.Add(2 * time.Second)

	// Then only that entry is gone
	_, ok = cache.Get("b")
	req.False(ok)
	_, ok = cache.Get("a")
	req.True(ok)
	req.Equal(1, cache.Size())
}

func Test_MemoryCache_DeleteFunc(t *testing.T) {
	req := require.New(t)
	cache := NewMemoryCache[string](time.Minute)
	defer cache.Close()

	cache.Set("alice@cuchi.vn", "x")
	cache.Set("bob@cuchi.vn", "y")
	cache.Set("carol@cuchi.vn", "x")

	removed := cache.DeleteFunc(func(_ string, v string) bool { return v == "x" })
	req.Equal(2, removed)
	req.ElementsMatch([]string{"bob@cuchi.vn"}, cache.Keys())

	cache.Clear()
	req.Zero(cache.Size())
}
