// Package config loads the application configuration from a TOML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultTier               = "free"
	defaultProviderName       = "anthropic"
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultOpenAIModel        = "gpt-4o-mini"
	defaultGroqModel          = "llama-3.3-70b-versatile"
	defaultCacheBackend       = "memory"
	defaultCacheTTL           = "15m"
	defaultCacheMaxEntries    = 1000
	defaultLedgerBackend      = "memory"
	defaultAgentMaxIterations = 10
	defaultSecuritySensitive  = "medium"
	defaultSecurityAction     = "warn"
	defaultConfigRelativePath = ".config/rana/config.toml"
	envProviderDefault        = "RANA_PROVIDER_DEFAULT"
	envProxyToken             = "RANA_PROXY_TOKEN"
	envTier                   = "RANA_TIER"
	envAnthropicAPIKey        = "ANTHROPIC_API_KEY"
	envOpenAIAPIKey           = "OPENAI_API_KEY"
	envGroqAPIKey             = "GROQ_API_KEY"
	envCacheBackend           = "RANA_CACHE_BACKEND"
	envCacheTTL               = "RANA_CACHE_TTL"
	envLedgerBackend          = "RANA_LEDGER_BACKEND"
	envLedgerPath             = "RANA_LEDGER_PATH"
	envAgentMaxIterations     = "RANA_AGENT_MAX_ITERATIONS"
)

var (
	// ErrInvalidConfig indicates malformed configuration input.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the application configuration root.
type Config struct {
	Tier     string         `toml:"tier"`
	Provider ProviderConfig `toml:"provider"`
	Cache    CacheConfig    `toml:"cache"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Agent    AgentConfig    `toml:"agent"`
	Security SecurityConfig `toml:"security"`
}

// ProviderConfig configures model providers.
type ProviderConfig struct {
	Default    string        `toml:"default"`
	ProxyToken string        `toml:"proxy_token"`
	Anthropic  ProviderEntry `toml:"anthropic"`
	OpenAI     ProviderEntry `toml:"openai"`
	Groq       ProviderEntry `toml:"groq"`
}

// ProviderEntry holds the runtime values shared by every provider.
type ProviderEntry struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Backend    string `toml:"backend"`
	TTL        string `toml:"ttl"`
	MaxEntries int    `toml:"max_entries"`
	Dir        string `toml:"dir"`
	RedisAddr  string `toml:"redis_addr"`
}

// LedgerConfig configures cost record storage.
type LedgerConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// AgentConfig configures agent-level behavior.
type AgentConfig struct {
	MaxIterations int `toml:"max_iterations"`
}

// SecurityConfig configures the security filters.
type SecurityConfig struct {
	Sensitivity   string `toml:"sensitivity"`
	DefaultAction string `toml:"default_action"`
}

// LoadOptions controls config loading behavior.
type LoadOptions struct {
	Path string
}

// CacheSettings is a validated cache configuration snapshot.
type CacheSettings struct {
	Backend    string
	TTL        time.Duration
	MaxEntries int
	Dir        string
	RedisAddr  string
}

// Default returns application defaults.
func Default() Config {
	return Config{
		Tier: defaultTier,
		Provider: ProviderConfig{
			Default:   defaultProviderName,
			Anthropic: ProviderEntry{Model: defaultAnthropicModel},
			OpenAI:    ProviderEntry{Model: defaultOpenAIModel},
			Groq:      ProviderEntry{Model: defaultGroqModel},
		},
		Cache: CacheConfig{
			Backend:    defaultCacheBackend,
			TTL:        defaultCacheTTL,
			MaxEntries: defaultCacheMaxEntries,
		},
		Ledger: LedgerConfig{
			Backend: defaultLedgerBackend,
		},
		Agent: AgentConfig{
			MaxIterations: defaultAgentMaxIterations,
		},
		Security: SecurityConfig{
			Sensitivity:   defaultSecuritySensitive,
			DefaultAction: defaultSecurityAction,
		},
	}
}

// Load reads the config file then applies environment variable overrides.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = DefaultPath()
	}

	if err := mergeConfigFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Credentials maps provider name to configured key material. Blank values
// are dropped so the key manager treats those providers as unavailable.
func (c Config) Credentials() map[string]string {
	out := make(map[string]string, 3)
	for name, entry := range map[string]ProviderEntry{
		"anthropic": c.Provider.Anthropic,
		"openai":    c.Provider.OpenAI,
		"groq":      c.Provider.Groq,
	} {
		if key := strings.TrimSpace(entry.APIKey); key != "" {
			out[name] = key
		}
	}
	return out
}

// ProviderEntry returns the configuration block for a named provider.
func (c Config) ProviderEntry(name string) (ProviderEntry, bool) {
	switch name {
	case "anthropic":
		return c.Provider.Anthropic, true
	case "openai":
		return c.Provider.OpenAI, true
	case "groq":
		return c.Provider.Groq, true
	default:
		return ProviderEntry{}, false
	}
}

// CacheSettings returns validated cache settings suitable for runtime wiring.
func (c Config) CacheSettings() (CacheSettings, error) {
	ttl, err := time.ParseDuration(strings.TrimSpace(c.Cache.TTL))
	if err != nil {
		return CacheSettings{}, fmt.Errorf("%w: parse cache ttl: %v", ErrInvalidConfig, err)
	}
	if ttl <= 0 {
		return CacheSettings{}, fmt.Errorf("%w: cache ttl must be positive", ErrInvalidConfig)
	}
	if c.Cache.MaxEntries < 0 {
		return CacheSettings{}, fmt.Errorf("%w: cache max_entries must be >= 0", ErrInvalidConfig)
	}

	return CacheSettings{
		Backend:    strings.TrimSpace(c.Cache.Backend),
		TTL:        ttl,
		MaxEntries: c.Cache.MaxEntries,
		Dir:        strings.TrimSpace(c.Cache.Dir),
		RedisAddr:  strings.TrimSpace(c.Cache.RedisAddr),
	}, nil
}

// Write marshals cfg to path, creating parent directories as needed. The
// init command uses it to scaffold a starting config file.
func Write(cfg Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

func mergeConfigFile(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if value, ok := os.LookupEnv(envTier); ok && strings.TrimSpace(value) != "" {
		cfg.Tier = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envProviderDefault); ok && strings.TrimSpace(value) != "" {
		cfg.Provider.Default = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envProxyToken); ok {
		cfg.Provider.ProxyToken = value
	}
	if value, ok := os.LookupEnv(envAnthropicAPIKey); ok {
		cfg.Provider.Anthropic.APIKey = value
	}
	if value, ok := os.LookupEnv(envOpenAIAPIKey); ok {
		cfg.Provider.OpenAI.APIKey = value
	}
	if value, ok := os.LookupEnv(envGroqAPIKey); ok {
		cfg.Provider.Groq.APIKey = value
	}
	if value, ok := os.LookupEnv(envCacheBackend); ok && strings.TrimSpace(value) != "" {
		cfg.Cache.Backend = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envCacheTTL); ok && strings.TrimSpace(value) != "" {
		cfg.Cache.TTL = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envLedgerBackend); ok && strings.TrimSpace(value) != "" {
		cfg.Ledger.Backend = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envLedgerPath); ok && strings.TrimSpace(value) != "" {
		cfg.Ledger.Path = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envAgentMaxIterations); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, envAgentMaxIterations, err)
		}
		cfg.Agent.MaxIterations = parsed
	}
	return nil
}

func validate(cfg Config) error {
	switch cfg.Tier {
	case "free", "paid":
	default:
		return fmt.Errorf("%w: tier must be %q or %q", ErrInvalidConfig, "free", "paid")
	}
	if strings.TrimSpace(cfg.Provider.Default) == "" {
		return fmt.Errorf("%w: provider.default is required", ErrInvalidConfig)
	}
	if _, ok := cfg.ProviderEntry(cfg.Provider.Default); cfg.Provider.Default != "auto" && !ok {
		return fmt.Errorf("%w: unknown provider.default %q", ErrInvalidConfig, cfg.Provider.Default)
	}
	switch cfg.Cache.Backend {
	case "memory", "file", "redis", "none":
	default:
		return fmt.Errorf("%w: unknown cache.backend %q", ErrInvalidConfig, cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "file" && strings.TrimSpace(cfg.Cache.Dir) == "" {
		return fmt.Errorf("%w: cache.dir is required for the file backend", ErrInvalidConfig)
	}
	if cfg.Cache.Backend == "redis" && strings.TrimSpace(cfg.Cache.RedisAddr) == "" {
		return fmt.Errorf("%w: cache.redis_addr is required for the redis backend", ErrInvalidConfig)
	}
	switch cfg.Ledger.Backend {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("%w: unknown ledger.backend %q", ErrInvalidConfig, cfg.Ledger.Backend)
	}
	if cfg.Ledger.Backend != "memory" && strings.TrimSpace(cfg.Ledger.Path) == "" {
		return fmt.Errorf("%w: ledger.path is required for the %s backend", ErrInvalidConfig, cfg.Ledger.Backend)
	}
	if cfg.Agent.MaxIterations <= 0 {
		return fmt.Errorf("%w: agent.max_iterations must be > 0", ErrInvalidConfig)
	}
	switch cfg.Security.Sensitivity {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("%w: unknown security.sensitivity %q", ErrInvalidConfig, cfg.Security.Sensitivity)
	}
	switch cfg.Security.DefaultAction {
	case "warn", "redact", "block":
	default:
		return fmt.Errorf("%w: unknown security.default_action %q", ErrInvalidConfig, cfg.Security.DefaultAction)
	}
	if _, err := cfg.CacheSettings(); err != nil {
		return err
	}
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultConfigRelativePath)
}
