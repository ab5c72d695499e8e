package helpers

import (
	"sort"
)

// Map iteration order is random, so anything that ends up in the output
// must iterate over sorted keys instead
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
