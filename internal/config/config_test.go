package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
logLevel: debug
databaseURL: postgres://localhost/hitmeup
jwtSecret: test-secret
anthropicAPIKey: sk-test
allowedOrigins:
  - http://localhost:3000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("allowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: postgres://localhost/hitmeup
jwtSecret: file-secret
anthropicAPIKey: sk-file
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	t.Setenv("SESSION_TTL", "24h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Errorf("jwtSecret = %q", cfg.JWTSecret)
	}
	if cfg.AnthropicAPIKey != "sk-env" {
		t.Errorf("anthropicAPIKey = %q", cfg.AnthropicAPIKey)
	}
	if cfg.SessionTTL != "24h" {
		t.Errorf("sessionTTL = %q", cfg.SessionTTL)
	}
}

func TestLoadMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing port", "databaseURL: x\njwtSecret: s\nanthropicAPIKey: k\n"},
		{"missing databaseURL", "port: \"8080\"\njwtSecret: s\nanthropicAPIKey: k\n"},
		{"missing jwtSecret", "port: \"8080\"\ndatabaseURL: x\nanthropicAPIKey: k\n"},
		{"missing anthropic key", "port: \"8080\"\ndatabaseURL: x\njwtSecret: s\n"},
		{"openai-compat without base url", "port: \"8080\"\ndatabaseURL: x\njwtSecret: s\naiProvider: openai-compat\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadOpenAICompatSkipsAnthropicKey(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: postgres://localhost/hitmeup
jwtSecret: s
aiProvider: openai-compat
aiBaseURL: http://localhost:8000/v1
aiModel: llama-3.1-8b
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestParseSessionTTL(t *testing.T) {
	if got := ParseSessionTTL(""); got != 7*24*time.Hour {
		t.Errorf("default ttl = %v", got)
	}
	if got := ParseSessionTTL("12h"); got != 12*time.Hour {
		t.Errorf("ttl = %v", got)
	}
	if got := ParseSessionTTL("garbage"); got != 7*24*time.Hour {
		t.Errorf("invalid ttl = %v", got)
	}
}
