// Package normalize canonicalizes decoded events before validation.
package normalize

import (
	"sort"
	"strings"
)

// Event lowercases and trims every key and string value, descending into
// nested maps and slices. Other values pass through untouched.
//
// When several keys collapse to the same normalized key, keys are visited in
// sorted order and the last one wins.
func Event(event map[string]any) map[string]any {
	out := make(map[string]any, len(event))
	keys := make([]string, 0, len(event))
	for k := range event {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[Key(k)] = Value(event[k])
	}
	return out
}

// Key normalizes a single map key.
func Key(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Value normalizes a single value.
func Value(v any) any {
	switch vv := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(vv))
	case map[string]any:
		return Event(vv)
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = Value(item)
		}
		return out
	default:
		return v
	}
}
