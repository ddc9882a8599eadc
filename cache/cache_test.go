package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmplaceAndGetOrdering(t *testing.T) {
	c := New[string, int](2, nil)
	assert.True(t, c.Emplace("a", 1, false))
	assert.True(t, c.Emplace("b", 2, false))
	assert.Equal(t, 2, c.Len())

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// "a" is now MRU; inserting "c" must evict "b" (the LRU entry).
	assert.True(t, c.Emplace("c", 3, false))
	_, ok = c.Peek("b")
	assert.False(t, ok, "least-recently-used entry should have been evicted")
	_, ok = c.Peek("a")
	assert.True(t, ok)
}

func TestEmplaceReplaceFlag(t *testing.T) {
	c := New[string, int](2, nil)
	c.Emplace("a", 1, false)
	c.Emplace("a", 99, false)
	v, _ := c.Peek("a")
	assert.Equal(t, 1, v, "replace=false must not overwrite an existing value")

	c.Emplace("a", 99, true)
	v, _ = c.Peek("a")
	assert.Equal(t, 99, v)
}

func TestEraseInvokesOnEvict(t *testing.T) {
	var evicted []string
	hooks := &recordingHooks{onEvict: func(k string, v int, clearing bool) {
		evicted = append(evicted, k)
	}}
	c := New[string, int](2, hooks)
	c.Emplace("a", 1, false)
	assert.True(t, c.Erase("a"))
	assert.Equal(t, []string{"a"}, evicted)
	assert.False(t, c.Erase("a"), "erasing an absent key reports false")
}

func TestCanEvictBlocksEviction(t *testing.T) {
	pinned := map[string]bool{"a": true}
	hooks := &recordingHooks{canEvict: func(k string, v int) bool { return !pinned[k] }}
	c := New[string, int](1, hooks)
	c.Emplace("a", 1, false)
	// "b" cannot fit: capacity is 1, and "a" is pinned, so Emplace must fail.
	assert.False(t, c.Emplace("b", 2, false))
	_, ok := c.Peek("a")
	assert.True(t, ok, "pinned entry must survive a failed eviction attempt")
}

func TestLastChanceCleanupCanUnstick(t *testing.T) {
	pinned := true
	hooks := &recordingHooks{
		canEvict: func(k string, v int) bool { return !pinned },
		onLastChanceCleanup: func() bool {
			if pinned {
				pinned = false
				return true
			}
			return false
		},
	}
	c := New[string, int](1, hooks)
	c.Emplace("a", 1, false)
	assert.True(t, c.Emplace("b", 2, false), "last-chance cleanup should unpin and let eviction proceed")
	_, ok := c.Peek("a")
	assert.False(t, ok)
}

func TestClearSwallowsPanickingHook(t *testing.T) {
	hooks := &recordingHooks{onEvict: func(k string, v int, clearing bool) {
		panic("boom")
	}}
	c := New[string, int](2, hooks)
	c.Emplace("a", 1, false)
	c.Emplace("b", 2, false)
	assert.NotPanics(t, func() { c.Clear() })
	assert.Equal(t, 0, c.Len())
}

type recordingHooks struct {
	canEvict            func(k string, v int) bool
	onEvict             func(k string, v int, clearing bool)
	onLastChanceCleanup func() bool
}

func (h *recordingHooks) CanEvict(k string, v int) bool {
	if h.canEvict == nil {
		return true
	}
	return h.canEvict(k, v)
}

func (h *recordingHooks) OnEvict(k string, v int, clearing bool) {
	if h.onEvict != nil {
		h.onEvict(k, v, clearing)
	}
}

func (h *recordingHooks) OnLastChanceCleanup() bool {
	if h.onLastChanceCleanup == nil {
		return false
	}
	return h.onLastChanceCleanup()
}
