package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderedRangeScan(t *testing.T) {
	o := NewOrdered[int, string](8, nil, func(a, b int) bool { return a < b })
	for _, k := range []int{5, 1, 3, 2, 4} {
		assert.True(t, o.Emplace(k, "v", false))
	}

	var keys []int
	o.RangeScan(2, 5, func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []int{2, 3, 4}, keys)
}

func TestOrderedEraseMaintainsIndex(t *testing.T) {
	o := NewOrdered[int, string](8, nil, func(a, b int) bool { return a < b })
	o.Emplace(1, "a", false)
	o.Emplace(2, "b", false)
	o.Emplace(3, "c", false)
	assert.True(t, o.Erase(2))

	var keys []int
	o.RangeScan(0, 10, func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []int{1, 3}, keys)
}

func TestOrderedScanSkipsCapacityEvicted(t *testing.T) {
	o := NewOrdered[int, string](2, nil, func(a, b int) bool { return a < b })
	o.Emplace(1, "a", false)
	o.Emplace(2, "b", false)
	o.Emplace(3, "c", false) // evicts 1 (LRU) inside the embedded cache

	var keys []int
	o.RangeScan(0, 10, func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []int{2, 3}, keys)
}
