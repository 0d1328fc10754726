package redact

import (
	"testing"
)

func TestSecretKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"api_key", true},
		{"OPENAI_API_KEY", true},
		{"apikey", true},
		{"access_key", true},
		{"client_secret", true},
		{"my_secret_value", true},
		{"Authorization", true},
		{"bearer_token", true},
		{"password", true},
		{"private_key", true},
		{"query", false},
		{"text", false},
		{"results", false},
		{"model", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := SecretKey(tt.key); got != tt.want {
				t.Errorf("SecretKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestMapRedactsNestedValues(t *testing.T) {
	in := map[string]interface{}{
		"query": "what is up",
		"config": map[string]interface{}{
			"api_key": "sk-123456",
			"model":   "gpt-4o",
		},
		"attempts": []interface{}{
			map[string]interface{}{"token": "abc", "status": "ok"},
		},
	}

	out := Map(in)

	cfg := out["config"].(map[string]interface{})
	if cfg["api_key"] != Placeholder {
		t.Errorf("expected nested api_key redacted, got %v", cfg["api_key"])
	}
	if cfg["model"] != "gpt-4o" {
		t.Errorf("expected model untouched, got %v", cfg["model"])
	}

	attempt := out["attempts"].([]interface{})[0].(map[string]interface{})
	if attempt["token"] != Placeholder {
		t.Errorf("expected token in list redacted, got %v", attempt["token"])
	}
	if attempt["status"] != "ok" {
		t.Errorf("expected status untouched, got %v", attempt["status"])
	}

	// The input must not be mutated.
	if in["config"].(map[string]interface{})["api_key"] != "sk-123456" {
		t.Error("input map was mutated")
	}
}

func TestMapNil(t *testing.T) {
	if Map(nil) != nil {
		t.Error("expected nil passthrough")
	}
}
