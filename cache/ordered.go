package cache

import "sort"

// Ordered wraps Cache with a sorted key index so callers can range-scan
// cached entries by natural key order, in addition to the usual
// recency-ordered point lookups. Used where cached items themselves need to
// be scanned in key order (e.g. a cached page of sequential block ids);
// plain Cache is used everywhere only point lookups matter.
type Ordered[K comparable, V any] struct {
	*Cache[K, V]
	less     func(a, b K) bool
	sortedKeys []K
}

func NewOrdered[K comparable, V any](capacity int, hooks Hooks[K, V], less func(a, b K) bool) *Ordered[K, V] {
	return &Ordered[K, V]{
		Cache: New(capacity, hooks),
		less:  less,
	}
}

func (o *Ordered[K, V]) indexOf(key K) int {
	return sort.Search(len(o.sortedKeys), func(i int) bool {
		return !o.less(o.sortedKeys[i], key)
	})
}

func (o *Ordered[K, V]) Emplace(key K, value V, replace bool) bool {
	_, existed := o.Cache.Peek(key)
	ok := o.Cache.Emplace(key, value, replace)
	if ok && !existed {
		i := o.indexOf(key)
		o.sortedKeys = append(o.sortedKeys, key)
		copy(o.sortedKeys[i+1:], o.sortedKeys[i:])
		o.sortedKeys[i] = key
	}
	return ok
}

func (o *Ordered[K, V]) Erase(key K) bool {
	ok := o.Cache.Erase(key)
	if ok {
		i := o.indexOf(key)
		if i < len(o.sortedKeys) && o.sortedKeys[i] == key {
			o.sortedKeys = append(o.sortedKeys[:i], o.sortedKeys[i+1:]...)
		}
	}
	return ok
}

// RangeScan calls fn for every cached key in [from, to) in ascending order,
// without disturbing recency order (it does not call Get).
func (o *Ordered[K, V]) RangeScan(from, to K, fn func(key K, value V) bool) {
	start := o.indexOf(from)
	for _, k := range o.sortedKeys[start:] {
		if !o.less(k, to) {
			break
		}
		v, ok := o.Cache.Peek(k)
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}
