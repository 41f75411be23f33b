package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Tier != "free" {
		t.Fatalf("Tier = %q, want %q", cfg.Tier, "free")
	}
	if cfg.Provider.Default != "anthropic" {
		t.Fatalf("Provider.Default = %q, want %q", cfg.Provider.Default, "anthropic")
	}
	if cfg.Provider.Anthropic.Model != "claude-sonnet-4-5" {
		t.Fatalf("Provider.Anthropic.Model = %q, want %q", cfg.Provider.Anthropic.Model, "claude-sonnet-4-5")
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("Cache.Backend = %q, want %q", cfg.Cache.Backend, "memory")
	}
	if cfg.Cache.TTL != "15m" {
		t.Fatalf("Cache.TTL = %q, want %q", cfg.Cache.TTL, "15m")
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Fatalf("Agent.MaxIterations = %d, want %d", cfg.Agent.MaxIterations, 10)
	}
	if cfg.Security.Sensitivity != "medium" {
		t.Fatalf("Security.Sensitivity = %q, want %q", cfg.Security.Sensitivity, "medium")
	}
	if cfg.Security.DefaultAction != "warn" {
		t.Fatalf("Security.DefaultAction = %q, want %q", cfg.Security.DefaultAction, "warn")
	}
}

func TestLoadFromFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
tier = "free"

[provider]
default = "openai"

[provider.anthropic]
api_key = "file-anthropic-key"
model = "file-model"
base_url = "https://file.example"

[provider.openai]
api_key = "file-openai-key"

[cache]
backend = "file"
ttl = "30m"
dir = "/tmp/rana-cache"

[ledger]
backend = "sqlite"
path = "/tmp/rana.db"

[agent]
max_iterations = 7

[security]
sensitivity = "high"
default_action = "redact"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	t.Setenv("GROQ_API_KEY", "env-groq-key")
	t.Setenv("RANA_CACHE_TTL", "45m")
	t.Setenv("RANA_AGENT_MAX_ITERATIONS", "4")

	cfg, err := Load(LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Provider.Default != "openai" {
		t.Fatalf("Provider.Default = %q, want %q", cfg.Provider.Default, "openai")
	}
	if cfg.Provider.Anthropic.APIKey != "env-anthropic-key" {
		t.Fatalf("Anthropic.APIKey = %q, want %q", cfg.Provider.Anthropic.APIKey, "env-anthropic-key")
	}
	if cfg.Provider.Anthropic.Model != "file-model" {
		t.Fatalf("Anthropic.Model = %q, want %q", cfg.Provider.Anthropic.Model, "file-model")
	}
	if cfg.Provider.Groq.APIKey != "env-groq-key" {
		t.Fatalf("Groq.APIKey = %q, want %q", cfg.Provider.Groq.APIKey, "env-groq-key")
	}
	if cfg.Cache.Backend != "file" {
		t.Fatalf("Cache.Backend = %q, want %q", cfg.Cache.Backend, "file")
	}
	if cfg.Cache.TTL != "45m" {
		t.Fatalf("Cache.TTL = %q, want %q", cfg.Cache.TTL, "45m")
	}
	if cfg.Ledger.Backend != "sqlite" {
		t.Fatalf("Ledger.Backend = %q, want %q", cfg.Ledger.Backend, "sqlite")
	}
	if cfg.Agent.MaxIterations != 4 {
		t.Fatalf("Agent.MaxIterations = %d, want %d", cfg.Agent.MaxIterations, 4)
	}
	if cfg.Security.Sensitivity != "high" {
		t.Fatalf("Security.Sensitivity = %q, want %q", cfg.Security.Sensitivity, "high")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown tier",
			content: `
tier = "enterprise"
`,
		},
		{
			name: "unknown cache backend",
			content: `
[cache]
backend = "memcached"
`,
		},
		{
			name: "file cache without dir",
			content: `
[cache]
backend = "file"
`,
		},
		{
			name: "sqlite ledger without path",
			content: `
[ledger]
backend = "sqlite"
`,
		},
		{
			name: "bad cache ttl",
			content: `
[cache]
ttl = "sometimes"
`,
		},
		{
			name: "zero agent iterations",
			content: `
[agent]
max_iterations = 0
`,
		},
		{
			name: "unknown security action",
			content: `
[security]
default_action = "shrug"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write config file: %v", err)
			}
			_, err := Load(LoadOptions{Path: path})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestCacheSettingsParsesTTL(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Cache.TTL = "90s"
	cfg.Cache.MaxEntries = 25

	settings, err := cfg.CacheSettings()
	if err != nil {
		t.Fatalf("CacheSettings() error = %v", err)
	}
	if settings.TTL != 90*time.Second {
		t.Fatalf("TTL = %s, want %s", settings.TTL, 90*time.Second)
	}
	if settings.MaxEntries != 25 {
		t.Fatalf("MaxEntries = %d, want %d", settings.MaxEntries, 25)
	}
}

func TestCredentialsDropsBlankKeys(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Provider.Anthropic.APIKey = "  sk-test  "
	cfg.Provider.OpenAI.APIKey = "   "

	creds := cfg.Credentials()
	if creds["anthropic"] != "sk-test" {
		t.Fatalf("creds[anthropic] = %q, want %q", creds["anthropic"], "sk-test")
	}
	if _, ok := creds["openai"]; ok {
		t.Fatalf("blank openai key should be dropped")
	}
	if _, ok := creds["groq"]; ok {
		t.Fatalf("blank groq key should be dropped")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	want := Default()
	want.Provider.Default = "groq"
	if err := Write(want, path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Load(LoadOptions{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Provider.Default != "groq" {
		t.Fatalf("Provider.Default = %q, want %q", got.Provider.Default, "groq")
	}
}
