// Package redact centralizes secret redaction for trace digests. A field is
// redacted when its name contains any of the known secret key substrings,
// case-insensitively. Only mappings passed through Map are redacted; the
// engine's log lines, including handler error messages, do not go through
// this package.
package redact

import (
	"strings"
)

// Placeholder replaces redacted values in digests.
const Placeholder = "[REDACTED]"

// secretKeySubstrings is the documented list of field-name substrings that
// mark a value as secret. Matching is case-insensitive.
var secretKeySubstrings = []string{
	"api_key",
	"apikey",
	"access_key",
	"secret",
	"token",
	"authorization",
	"password",
	"private_key",
	"client_secret",
}

// SecretKey reports whether a field name matches the secret key list.
func SecretKey(name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range secretKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// Map returns a copy of m with every secret-keyed value replaced by
// Placeholder. Nested maps and slices are walked recursively. The input is
// never mutated.
func Map(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if SecretKey(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = value(v)
	}
	return out
}

// value redacts nested containers; scalars pass through unchanged.
func value(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return Map(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = value(e)
		}
		return out
	default:
		return v
	}
}
