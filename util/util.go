package util

import (
	"iter"
	"sort"
)

// CanonicalMapIter yields m's entries in sorted key order, so that code
// building output from a map — REST's column-name set — doesn't carry Go's randomized map order into its
// result.
func CanonicalMapIter[T any](m map[string]T) iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}
