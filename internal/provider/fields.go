package provider

import (
	"strconv"
	"strings"
)

// Alias decoding helpers. Provider webhook formats drift over time, so each
// logical field is looked up through a list of historical aliases tried in
// the declared order. The order is stable and part of each adapter's tested
// contract.

// stringField returns the first alias present as a non-empty string.
// Numeric values are rendered to their string form since several providers
// switched order ids between string and number across versions.
func stringField(payload map[string]any, aliases ...string) string {
	for _, key := range aliases {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case int:
			return strconv.Itoa(s)
		}
	}
	return ""
}

// numberField returns the first alias present as a number. Malformed values
// fall back to zero and negative values are clamped to zero rather than
// failing the whole extraction.
func numberField(payload map[string]any, aliases ...string) float64 {
	for _, key := range aliases {
		v, ok := payload[key]
		if !ok {
			continue
		}
		var n float64
		switch t := v.(type) {
		case float64:
			n = t
		case int:
			n = float64(t)
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				continue
			}
			n = parsed
		default:
			continue
		}
		if n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// intField is numberField truncated to int, clamped to zero on malformed input.
func intField(payload map[string]any, aliases ...string) int {
	return int(numberField(payload, aliases...))
}

// sliceField returns the first alias present as a non-empty slice.
func sliceField(payload map[string]any, aliases ...string) []any {
	for _, key := range aliases {
		if v, ok := payload[key].([]any); ok && len(v) > 0 {
			return v
		}
	}
	return nil
}

// mapField returns the first alias present as an object.
func mapField(payload map[string]any, aliases ...string) map[string]any {
	for _, key := range aliases {
		if v, ok := payload[key].(map[string]any); ok {
			return v
		}
	}
	return nil
}
