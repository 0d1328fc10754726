package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mettice/nodeai/pkg/redact"
)

// DigestLimits bounds the size of trace digests.
type DigestLimits struct {
	// MaxStringLen truncates string values beyond this many characters.
	MaxStringLen int

	// HashOverLen replaces any payload larger than this many bytes with its
	// SHA-256 hash.
	HashOverLen int
}

// Digest produces the length-bounded JSON representation of a mapping used in
// trace steps: secret-keyed values redacted, strings truncated, and payloads
// over the size threshold replaced by their hash. The input is never mutated.
func Digest(data map[string]interface{}, limits DigestLimits) string {
	if data == nil {
		return ""
	}
	bounded := boundValue(redact.Map(data), limits)
	encoded, err := json.Marshal(bounded)
	if err != nil {
		return fmt.Sprintf("unserializable: %v", err)
	}
	if limits.HashOverLen > 0 && len(encoded) > limits.HashOverLen {
		sum := sha256.Sum256(encoded)
		return "sha256:" + hex.EncodeToString(sum[:])
	}
	return string(encoded)
}

// boundValue walks the value tree truncating strings and hashing oversized
// byte blobs.
func boundValue(v interface{}, limits DigestLimits) interface{} {
	switch t := v.(type) {
	case string:
		if limits.MaxStringLen > 0 && len(t) > limits.MaxStringLen {
			if runes := []rune(t); len(runes) > limits.MaxStringLen {
				return string(runes[:limits.MaxStringLen])
			}
		}
		return t
	case []byte:
		if limits.HashOverLen > 0 && len(t) > limits.HashOverLen {
			sum := sha256.Sum256(t)
			return "sha256:" + hex.EncodeToString(sum[:])
		}
		return t
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = boundValue(e, limits)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = boundValue(e, limits)
		}
		return out
	default:
		return v
	}
}
