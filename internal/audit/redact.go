package audit

import (
	"regexp"
)

// Secret-shaped assignments are masked before a record is hashed, so secrets
// never enter the chain and redaction never invalidates it.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key\s*=\s*)([A-Za-z0-9\-._]+)`),
	regexp.MustCompile(`(?i)(token\s*=\s*)([A-Za-z0-9\-._]+)`),
	regexp.MustCompile(`(?i)(password\s*=\s*)(\S+)`),
}

// Mask replaces secret-shaped values in a string with "****".
func Mask(s string) string {
	for _, pat := range secretPatterns {
		s = pat.ReplaceAllString(s, "${1}****")
	}
	return s
}

func redactData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return Mask(val)
	case map[string]any:
		return redactData(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
