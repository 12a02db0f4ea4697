// Package redact masks secrets before they reach logs, audit records or API
// responses.
package redact

import (
	"regexp"
	"strings"
)

// DefaultSecretKeys are the parameter keys automatically redacted.
var DefaultSecretKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"access_key", "secret_key", "private_key", "authorization", "auth",
	"credential", "credentials", "cookie", "session_token",
}

// credKVRe matches key=value pairs where the key suggests a secret.
var credKVRe = regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api_key|apikey|auth)([ \t]*[=:][ \t]*)(\S+)`)

// MaskValue replaces a value with "***". Numbers and bools are preserved.
func MaskValue(v any) any {
	switch v.(type) {
	case int, int64, float64, bool:
		return v
	case nil:
		return nil
	default:
		return "***"
	}
}

// MaskSecret keeps enough of s to recognize it: the first four and last two
// characters. Short values are fully masked.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + strings.Repeat("*", len(s)-6) + s[len(s)-2:]
}

// RedactMap redacts specified keys in a map. Nested maps are walked.
func RedactMap(data map[string]any, keys []string) map[string]any {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[strings.ToLower(k)] = true
	}
	return redactMap(data, keySet)
}

func redactMap(data map[string]any, keySet map[string]bool) map[string]any {
	if data == nil {
		return nil
	}
	result := make(map[string]any, len(data))
	for k, v := range data {
		switch {
		case keySet[strings.ToLower(k)]:
			result[k] = MaskValue(v)
		default:
			switch inner := v.(type) {
			case map[string]any:
				result[k] = redactMap(inner, keySet)
			case string:
				result[k] = Text(inner)
			default:
				result[k] = v
			}
		}
	}
	return result
}

// Params redacts tool call parameters using DefaultSecretKeys plus extraKeys.
func Params(params map[string]any, extraKeys ...string) map[string]any {
	keys := append(append([]string{}, DefaultSecretKeys...), extraKeys...)
	return RedactMap(params, keys)
}

// Text masks the value half of inline credentials such as "token=abc123".
func Text(s string) string {
	return credKVRe.ReplaceAllString(s, "${1}${2}***")
}
