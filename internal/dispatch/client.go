package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"rana/internal/cache"
	"rana/internal/keys"
	"rana/internal/ledger"
	"rana/internal/llm"
	"rana/internal/metrics"

	"github.com/google/uuid"
)

// ProviderAuto lets the client pick a provider by the Optimize policy.
const ProviderAuto = "auto"

// Optimize policies for automatic provider selection.
const (
	OptimizeCost     = "cost"
	OptimizeQuality  = "quality"
	OptimizeBalanced = "balanced"
)

const defaultCacheTTL = 15 * time.Minute

// ChatRequest is one dispatchable chat turn.
type ChatRequest struct {
	Provider    string // "" and "auto" select by Optimize
	Model       string // "" uses the provider's default
	Optimize    string // cost | quality | balanced (default)
	System      string
	Messages    []llm.Message
	Tools       []llm.ToolSpec
	Temperature *float64
	MaxTokens   int
	SessionID   string
	NoCache     bool
}

// ChatResult is the dispatched outcome with its accounting attached.
type ChatResult struct {
	Content    string
	ToolCalls  []llm.ToolCall
	StopReason llm.StopReason
	Usage      llm.Usage
	Cost       llm.Cost
	Provider   string
	Model      string
	Cached     bool
	Latency    time.Duration
}

// Config wires a Client. Cache and Ledger are optional; a nil Cache disables
// caching and a nil Ledger disables cost recording.
type Config struct {
	Registry *Registry
	Keys     *keys.Manager
	Cache    cache.Cache
	Ledger   ledger.Store
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Client is the single entry point for chat dispatch.
type Client struct {
	registry  *Registry
	keys      *keys.Manager
	cache     cache.Cache
	store     ledger.Store
	cacheTTL  time.Duration
	estimator *Estimator
	logger    *slog.Logger
	now       func() time.Time
}

// NewClient builds a dispatch client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("dispatch: registry is required")
	}
	if cfg.Keys == nil {
		return nil, fmt.Errorf("dispatch: key manager is required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		registry:  cfg.Registry,
		keys:      cfg.Keys,
		cache:     cfg.Cache,
		store:     cfg.Ledger,
		cacheTTL:  ttl,
		estimator: NewEstimator(),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Chat resolves a provider and model, serves from cache when possible, and
// otherwise dispatches, pricing and recording the result.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", llm.ErrInvalidRequest)
	}

	providerName, entry, model, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	key := cacheKey(providerName, model, req)
	if c.cache != nil && !req.NoCache {
		if result, ok := c.cacheLookup(ctx, key); ok {
			result.Provider = providerName
			result.Model = model
			metrics.CacheHit()
			c.record(ctx, result, req.SessionID)
			return result, nil
		}
		metrics.CacheMiss()
	}

	result, err := c.dispatch(ctx, providerName, entry, model, req)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && !req.NoCache {
		c.cacheStore(ctx, key, result)
	}
	c.record(ctx, result, req.SessionID)
	return result, nil
}

// Provider exposes a registered adapter, for callers that drive the provider
// protocol directly (streaming, agent loops).
func (c *Client) Provider(name string) (llm.Provider, error) {
	entry, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return entry.Provider, nil
}

// resolve maps the request onto a concrete provider entry and model.
func (c *Client) resolve(req ChatRequest) (string, Entry, string, error) {
	name := req.Provider
	if name == "" || name == ProviderAuto {
		return c.selectProvider(req.Optimize)
	}

	entry, err := c.registry.Lookup(name)
	if err != nil {
		return "", Entry{}, "", err
	}
	if _, ok, err := c.keys.Resolve(name); err != nil {
		return "", Entry{}, "", err
	} else if !ok {
		return "", Entry{}, "", fmt.Errorf("%w: %s", llm.ErrMissingAPIKey, name)
	}

	model := req.Model
	if model == "" {
		model = entry.DefaultModel
	}
	return name, entry, model, nil
}

// selectProvider applies the Optimize policy over credentialed providers.
// Selection is a static lookup against the registry's configured models, not
// an adaptive ranking.
func (c *Client) selectProvider(optimize string) (string, Entry, string, error) {
	var available []string
	for _, name := range c.registry.Names() {
		if c.keys.Available(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return "", Entry{}, "", fmt.Errorf("selecting provider: %w", keys.ErrNoCredentials)
	}

	switch optimize {
	case OptimizeCost:
		bestName := ""
		var bestEntry Entry
		bestRate := 0.0
		for _, name := range available {
			entry, _ := c.registry.Lookup(name)
			r := entry.Rates.Lookup(entry.CheapestModel)
			combined := r.InputPerKTokUSD + r.OutputPerKTokUSD
			if bestName == "" || combined < bestRate {
				bestName, bestEntry, bestRate = name, entry, combined
			}
		}
		return bestName, bestEntry, bestEntry.CheapestModel, nil
	case OptimizeQuality:
		entry, _ := c.registry.Lookup(available[0])
		return available[0], entry, entry.BestModel, nil
	default:
		entry, _ := c.registry.Lookup(available[0])
		return available[0], entry, entry.DefaultModel, nil
	}
}

func (c *Client) dispatch(ctx context.Context, providerName string, entry Entry, model string, req ChatRequest) (*ChatResult, error) {
	llmReq := &llm.Request{
		Model:       model,
		System:      req.System,
		Messages:    req.Messages,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	start := c.now()
	resp, err := entry.Provider.Complete(ctx, llmReq)
	latency := c.now().Sub(start)
	if err != nil {
		metrics.ObserveRequest(providerName, model, "error", latency.Seconds())
		return nil, err
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage.PromptTokens = c.estimator.CountMessages(model, req.System, req.Messages)
		usage.CompletionTokens = c.estimator.Count(model, resp.Content)
		usage = usage.Normalize()
	}
	cost := llm.CalculateCost(usage, entry.Rates.Lookup(model))

	metrics.ObserveRequest(providerName, model, "ok", latency.Seconds())
	metrics.ObserveUsage(providerName, model, usage.TotalTokens, cost.TotalUSD)

	return &ChatResult{
		Content:    resp.Content,
		ToolCalls:  resp.ToolCalls,
		StopReason: resp.StopReason,
		Usage:      usage,
		Cost:       cost,
		Provider:   providerName,
		Model:      model,
		Latency:    latency,
	}, nil
}

// cachedResponse is the cache envelope. Cost is deliberately excluded: cache
// hits are free and recorded as such.
type cachedResponse struct {
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	StopReason llm.StopReason `json:"stop_reason"`
	Usage      llm.Usage      `json:"usage"`
}

func (c *Client) cacheLookup(ctx context.Context, key string) (*ChatResult, bool) {
	raw, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var cached cachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.logger.Warn("discarding undecodable cache entry", slog.Any("error", err))
		c.cache.Delete(ctx, key)
		return nil, false
	}
	return &ChatResult{
		Content:    cached.Content,
		ToolCalls:  cached.ToolCalls,
		StopReason: cached.StopReason,
		Usage:      cached.Usage,
		Cached:     true,
	}, true
}

func (c *Client) cacheStore(ctx context.Context, key string, result *ChatResult) {
	raw, err := json.Marshal(cachedResponse{
		Content:    result.Content,
		ToolCalls:  result.ToolCalls,
		StopReason: result.StopReason,
		Usage:      result.Usage,
	})
	if err != nil {
		c.logger.Warn("cache encode failed", slog.Any("error", err))
		return
	}
	c.cache.Set(ctx, key, raw, c.cacheTTL)
}

func (c *Client) record(ctx context.Context, result *ChatResult, sessionID string) {
	if c.store == nil {
		return
	}
	record := ledger.CostRecord{
		Provider:         result.Provider,
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		TotalTokens:      result.Usage.TotalTokens,
		InputCostUSD:     result.Cost.InputUSD,
		OutputCostUSD:    result.Cost.OutputUSD,
		TotalCostUSD:     result.Cost.TotalUSD,
		Cached:           result.Cached,
		LatencyMS:        result.Latency.Milliseconds(),
		SessionID:        sessionID,
		RequestID:        uuid.NewString(),
	}
	if err := c.store.Save(ctx, &record); err != nil {
		c.logger.Warn("cost record not saved", slog.Any("error", err))
	}
}

// cacheKey derives a stable digest over every request field that shapes the
// response.
func cacheKey(provider, model string, req ChatRequest) string {
	toolNames := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		toolNames = append(toolNames, t.Name)
	}
	payload, _ := json.Marshal(struct {
		Provider    string        `json:"provider"`
		Model       string        `json:"model"`
		System      string        `json:"system"`
		Messages    []llm.Message `json:"messages"`
		Tools       []string      `json:"tools,omitempty"`
		Temperature *float64      `json:"temperature,omitempty"`
		MaxTokens   int           `json:"max_tokens,omitempty"`
	}{provider, model, req.System, req.Messages, toolNames, req.Temperature, req.MaxTokens})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
