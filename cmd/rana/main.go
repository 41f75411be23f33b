package main

import (
	"fmt"
	"os"
	"strings"

	"rana/internal/cache"
	"rana/internal/config"
	"rana/internal/dispatch"
	"rana/internal/keys"
	"rana/internal/ledger"
	"rana/internal/llm"
	"rana/internal/llm/resilience"
	"rana/internal/tools"

	"github.com/spf13/cobra"
)

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "rana: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "rana",
		Short:         "rana dispatches chat requests across LLM providers with caching and cost tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	cmd.AddCommand(
		newChatCmd(&configPath),
		newCheckCmd(&configPath),
		newInitCmd(&configPath),
		newDebugCmd(&configPath),
		newSecurityCmd(),
		newCostCmd(&configPath),
	)
	return cmd
}

// runtime bundles everything a dispatching command needs. Close releases
// the ledger backend.
type runtime struct {
	cfg    config.Config
	client *dispatch.Client
	store  ledger.Store
}

func (r *runtime) Close() {
	if r.store != nil {
		_ = r.store.Close()
	}
}

func buildRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(configPath)})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	manager, err := buildKeyManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("build key manager: %w", err)
	}

	registry, err := buildRegistry(cfg, manager)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	settings, err := cfg.CacheSettings()
	if err != nil {
		return nil, err
	}
	responseCache, err := buildCache(settings)
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}

	store, err := buildLedger(cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	client, err := dispatch.NewClient(dispatch.Config{
		Registry: registry,
		Keys:     manager,
		Cache:    responseCache,
		Ledger:   store,
		CacheTTL: settings.TTL,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	return &runtime{cfg: cfg, client: client, store: store}, nil
}

func buildKeyManager(cfg config.Config) (*keys.Manager, error) {
	return keys.New(keys.Config{
		Tier:        keys.Tier(cfg.Tier),
		Credentials: cfg.Credentials(),
		ProxyToken:  cfg.Provider.ProxyToken,
	})
}

// buildRegistry constructs every known provider adapter, wrapped with the
// retry and circuit-breaker decorators. Providers without credentials are
// still registered; the key manager gates them at dispatch time.
func buildRegistry(cfg config.Config, manager *keys.Manager) (*dispatch.Registry, error) {
	names := []string{llm.ProviderAnthropic, llm.ProviderOpenAI, llm.ProviderGroq}
	entries := make(map[string]dispatch.Entry, len(names))

	for _, name := range names {
		entry, ok := dispatch.DefaultEntry(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", llm.ErrUnknownProvider, name)
		}

		providerCfg, _ := cfg.ProviderEntry(name)
		if model := strings.TrimSpace(providerCfg.Model); model != "" {
			entry.DefaultModel = model
		}

		apiKey := ""
		if key, ok, err := manager.Resolve(name); err == nil && ok {
			apiKey = key.Value
		}

		entry.Provider = resilience.WithBreaker(
			resilience.WithRetry(buildProvider(name, apiKey, providerCfg.BaseURL), llm.RetryPolicy{}),
			resilience.BreakerConfig{},
		)
		entries[name] = entry
	}

	return dispatch.NewRegistry(names, entries)
}

func buildProvider(name, apiKey, baseURL string) llm.Provider {
	switch name {
	case llm.ProviderAnthropic:
		return llm.NewAnthropicProvider(llm.AnthropicConfig{APIKey: apiKey, BaseURL: baseURL})
	case llm.ProviderGroq:
		return llm.NewOpenAIProvider(llm.OpenAIConfig{Name: llm.ProviderGroq, APIKey: apiKey, BaseURL: baseURL})
	default:
		return llm.NewOpenAIProvider(llm.OpenAIConfig{Name: llm.ProviderOpenAI, APIKey: apiKey, BaseURL: baseURL})
	}
}

func buildCache(settings config.CacheSettings) (cache.Cache, error) {
	switch settings.Backend {
	case "none":
		return nil, nil
	case "file":
		return cache.NewFile(settings.Dir, "")
	case "redis":
		return cache.NewRedis(cache.RedisConfig{Addr: settings.RedisAddr})
	default:
		return cache.NewMemory(settings.MaxEntries), nil
	}
}

func buildLedger(cfg config.LedgerConfig) (ledger.Store, error) {
	switch cfg.Backend {
	case "file":
		return ledger.NewFile(cfg.Path)
	case "sqlite":
		return ledger.NewSQLite(cfg.Path)
	default:
		return ledger.NewMemory(), nil
	}
}

func buildToolRegistry(session string) (*tools.Registry, error) {
	store := tools.NewSessionStore()
	builtin := []tools.Tool{
		tools.NewCalcTool(),
		tools.NewMemoryTool(store, session),
		tools.NewClockTool(),
	}

	registry := tools.NewRegistry()
	for _, tool := range builtin {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("register %s: %w", tool.Name(), err)
		}
	}
	return registry, nil
}
