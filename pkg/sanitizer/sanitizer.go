// Package sanitizer strips executable and markup content from untrusted
// strings before they are stored or forwarded. Webhook payload fields such
// as order notes and customer names later render in operator dashboards, so
// they are treated as hostile input.
package sanitizer

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptTagRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleTagRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
	eventAttrRe = regexp.MustCompile(`(?i)\bon\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsProtoRe   = regexp.MustCompile(`(?i)javascript\s*:`)
)

// String removes script and style blocks, event-handler attributes,
// javascript: protocols, remaining markup, and control characters, then
// escapes whatever HTML metacharacters survive.
func String(s string) string {
	if s == "" {
		return s
	}
	out := scriptTagRe.ReplaceAllString(s, "")
	out = styleTagRe.ReplaceAllString(out, "")
	out = eventAttrRe.ReplaceAllString(out, "")
	out = jsProtoRe.ReplaceAllString(out, "")
	out = htmlTagRe.ReplaceAllString(out, "")
	out = stripControl(out)
	return html.EscapeString(strings.TrimSpace(out))
}

// Map sanitizes every string value in a decoded JSON document in place,
// descending into nested objects and arrays. Non-string values pass through
// untouched.
func Map(payload map[string]any) map[string]any {
	for key, value := range payload {
		payload[key] = Value(value)
	}
	return payload
}

// Value sanitizes one decoded JSON value recursively.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		return Map(t)
	case []any:
		for i, elem := range t {
			t[i] = Value(elem)
		}
		return t
	default:
		return v
	}
}

// stripControl drops ASCII control characters except tab and newline, which
// legitimately appear in delivery instructions.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
