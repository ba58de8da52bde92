package rules

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Interpolate replaces {{field.path}} placeholders with values looked up
// in the payload. Unresolved placeholders are left verbatim so a missing
// field is visible in the delivered text instead of silently blanked.
func Interpolate(template string, payload map[string]interface{}) string {
	if template == "" {
		return ""
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		value, found := Lookup(payload, path)
		if !found || value == nil {
			return match
		}
		return stringify(value)
	})
}

// InterpolateConfig resolves placeholders in every string value of an
// action configuration, returning a copy. Non-string values pass through.
func InterpolateConfig(config map[string]interface{}, payload map[string]interface{}) map[string]interface{} {
	if config == nil {
		return nil
	}
	out := make(map[string]interface{}, len(config))
	for k, v := range config {
		if s, ok := v.(string); ok {
			out[k] = Interpolate(s, payload)
		} else {
			out[k] = v
		}
	}
	return out
}
