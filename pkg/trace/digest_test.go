package trace

import (
	"strings"
	"testing"
)

var testLimits = DigestLimits{MaxStringLen: 16, HashOverLen: 256}

func TestDigestRedactsSecrets(t *testing.T) {
	digest := Digest(map[string]interface{}{
		"query":   "hello",
		"api_key": "sk-should-never-appear",
	}, testLimits)

	if strings.Contains(digest, "sk-should-never-appear") {
		t.Errorf("digest leaked a secret: %s", digest)
	}
	if !strings.Contains(digest, "hello") {
		t.Errorf("digest lost a non-secret value: %s", digest)
	}
}

func TestDigestTruncatesStrings(t *testing.T) {
	long := strings.Repeat("a", 100)
	digest := Digest(map[string]interface{}{"text": long}, testLimits)

	if strings.Contains(digest, long) {
		t.Error("expected long string truncated")
	}
	if !strings.Contains(digest, strings.Repeat("a", 16)) {
		t.Errorf("expected 16-char prefix retained, got %s", digest)
	}
}

func TestDigestHashesOversizedPayload(t *testing.T) {
	data := make(map[string]interface{})
	for i := 0; i < 100; i++ {
		data[strings.Repeat("k", 5)+string(rune('a'+i%26))+string(rune('a'+i/26))] = i
	}
	digest := Digest(data, DigestLimits{MaxStringLen: 16, HashOverLen: 64})

	if !strings.HasPrefix(digest, "sha256:") {
		t.Errorf("expected hashed digest, got %s", digest)
	}
	// sha256: prefix plus 64 hex chars
	if len(digest) != 7+64 {
		t.Errorf("unexpected hash length: %d", len(digest))
	}
}

func TestDigestNil(t *testing.T) {
	if got := Digest(nil, testLimits); got != "" {
		t.Errorf("expected empty digest for nil, got %q", got)
	}
}
