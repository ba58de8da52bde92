// Package rules implements pure rule evaluation: condition trees against
// trigger payloads, dot-path field lookup, and template interpolation.
package rules

import (
	"strings"
)

// Lookup walks the payload by dot-path. The second return value is false
// when any intermediate key is missing; absence is not an error.
func Lookup(payload map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	var current interface{} = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
