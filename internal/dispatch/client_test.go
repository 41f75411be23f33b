package dispatch

import (
	"context"
	"errors"
	"math"
	"testing"

	"rana/internal/cache"
	"rana/internal/keys"
	"rana/internal/ledger"
	"rana/internal/llm"
	mockprovider "rana/internal/llm/providers/mock"
)

func testRegistry(t *testing.T, providers map[string]*mockprovider.Provider) *Registry {
	t.Helper()

	rates := llm.RateTable{
		"test-model":  {InputPerKTokUSD: 0.003, OutputPerKTokUSD: 0.015},
		"cheap-model": {InputPerKTokUSD: 0.0001, OutputPerKTokUSD: 0.0005},
	}

	names := make([]string, 0, len(providers))
	entries := make(map[string]Entry, len(providers))
	for _, name := range []string{"alpha", "beta"} {
		p, ok := providers[name]
		if !ok {
			continue
		}
		names = append(names, name)
		entries[name] = Entry{
			Provider:      p,
			Rates:         rates,
			DefaultModel:  "test-model",
			BestModel:     "test-model",
			CheapestModel: "cheap-model",
		}
	}

	reg, err := NewRegistry(names, entries)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func testKeys(t *testing.T, credentials map[string]string) *keys.Manager {
	t.Helper()
	km, err := keys.New(keys.Config{Tier: keys.TierFree, Credentials: credentials})
	if err != nil {
		t.Fatalf("keys.New() error = %v", err)
	}
	return km
}

func scriptedResponse(content string) *llm.Response {
	return &llm.Response{
		Content:    content,
		Usage:      llm.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
		StopReason: llm.StopReasonStop,
	}
}

func TestChatPricesAndCachesResponses(t *testing.T) {
	ctx := context.Background()
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script:       []mockprovider.Step{{Response: scriptedResponse("hello")}},
	}
	store := ledger.NewMemory()

	client, err := NewClient(Config{
		Registry: testRegistry(t, map[string]*mockprovider.Provider{"alpha": mock}),
		Keys:     testKeys(t, map[string]string{"alpha": "k"}),
		Cache:    cache.NewMemory(10),
		Ledger:   store,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	req := ChatRequest{Provider: "alpha", Messages: []llm.Message{llm.UserMessage("hi")}}

	first, err := client.Chat(ctx, req)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if first.Cached {
		t.Error("first call must not be cached")
	}
	// 5/1000*0.003 + 1/1000*0.015
	if !approx(first.Cost.TotalUSD, 0.00003) {
		t.Errorf("TotalUSD = %v, want 0.00003", first.Cost.TotalUSD)
	}
	if first.Provider != "alpha" || first.Model != "test-model" {
		t.Errorf("resolved %s/%s, want alpha/test-model", first.Provider, first.Model)
	}

	second, err := client.Chat(ctx, req)
	if err != nil {
		t.Fatalf("second Chat() error = %v", err)
	}
	if !second.Cached {
		t.Error("identical request must be served from cache")
	}
	if second.Cost.TotalUSD != 0 {
		t.Errorf("cached cost = %v, want 0", second.Cost.TotalUSD)
	}
	if second.Content != "hello" {
		t.Errorf("cached content = %q", second.Content)
	}
	if mock.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", mock.Calls())
	}

	records, err := store.Query(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("ledger query error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ledger holds %d records, want 2", len(records))
	}
	cachedCount := 0
	for _, r := range records {
		if r.RequestID == "" {
			t.Errorf("record %s has no request id", r.ID)
		}
		if r.Cached {
			cachedCount++
			if r.TotalCostUSD != 0 {
				t.Errorf("cached record cost = %v, want 0", r.TotalCostUSD)
			}
		}
	}
	if cachedCount != 1 {
		t.Errorf("cached records = %d, want 1", cachedCount)
	}
	if records[0].RequestID == records[1].RequestID {
		t.Errorf("request ids not unique per dispatch: %q", records[0].RequestID)
	}
}

func TestChatNoCacheBypassesCache(t *testing.T) {
	ctx := context.Background()
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script:       []mockprovider.Step{{Response: scriptedResponse("hello")}},
	}
	client, err := NewClient(Config{
		Registry: testRegistry(t, map[string]*mockprovider.Provider{"alpha": mock}),
		Keys:     testKeys(t, map[string]string{"alpha": "k"}),
		Cache:    cache.NewMemory(10),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	req := ChatRequest{Provider: "alpha", NoCache: true, Messages: []llm.Message{llm.UserMessage("hi")}}
	for i := 0; i < 2; i++ {
		if _, err := client.Chat(ctx, req); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}
	if mock.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", mock.Calls())
	}
}

func TestChatRejectsBeforeIO(t *testing.T) {
	ctx := context.Background()
	mock := &mockprovider.Provider{ProviderName: "alpha"}
	client, err := NewClient(Config{
		Registry: testRegistry(t, map[string]*mockprovider.Provider{"alpha": mock}),
		Keys:     testKeys(t, map[string]string{"alpha": "k"}),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	tests := []struct {
		name    string
		req     ChatRequest
		wantErr error
	}{
		{
			name:    "unknown provider",
			req:     ChatRequest{Provider: "nope", Messages: []llm.Message{llm.UserMessage("hi")}},
			wantErr: llm.ErrUnknownProvider,
		},
		{
			name:    "no messages",
			req:     ChatRequest{Provider: "alpha"},
			wantErr: llm.ErrInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Chat(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Chat() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if mock.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", mock.Calls())
	}
}

func TestChatMissingCredential(t *testing.T) {
	ctx := context.Background()
	mock := &mockprovider.Provider{ProviderName: "alpha"}
	client, err := NewClient(Config{
		Registry: testRegistry(t, map[string]*mockprovider.Provider{"alpha": mock}),
		Keys:     testKeys(t, nil),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Chat(ctx, ChatRequest{Provider: "alpha", Messages: []llm.Message{llm.UserMessage("hi")}})
	if !errors.Is(err, llm.ErrMissingAPIKey) {
		t.Fatalf("Chat() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestChatPaidTierWithoutProxyToken(t *testing.T) {
	ctx := context.Background()
	mock := &mockprovider.Provider{ProviderName: "alpha"}
	km, err := keys.New(keys.Config{Tier: keys.TierPaid})
	if err != nil {
		t.Fatalf("keys.New() error = %v", err)
	}
	client, err := NewClient(Config{
		Registry: testRegistry(t, map[string]*mockprovider.Provider{"alpha": mock}),
		Keys:     km,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Chat(ctx, ChatRequest{Provider: "alpha", Messages: []llm.Message{llm.UserMessage("hi")}})
	if !errors.Is(err, keys.ErrProxyTokenMissing) {
		t.Fatalf("Chat() error = %v, want ErrProxyTokenMissing", err)
	}
}

func TestAutoSelection(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		optimize     string
		credentials  map[string]string
		wantProvider string
		wantModel    string
	}{
		{
			name:         "balanced takes first available default",
			optimize:     OptimizeBalanced,
			credentials:  map[string]string{"alpha": "k", "beta": "k"},
			wantProvider: "alpha",
			wantModel:    "test-model",
		},
		{
			name:         "quality takes configured best",
			optimize:     OptimizeQuality,
			credentials:  map[string]string{"beta": "k"},
			wantProvider: "beta",
			wantModel:    "test-model",
		},
		{
			name:         "cost takes cheapest model",
			optimize:     OptimizeCost,
			credentials:  map[string]string{"alpha": "k", "beta": "k"},
			wantProvider: "alpha",
			wantModel:    "cheap-model",
		},
		{
			name:         "skips uncredentialed providers",
			optimize:     OptimizeBalanced,
			credentials:  map[string]string{"beta": "k"},
			wantProvider: "beta",
			wantModel:    "test-model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers := map[string]*mockprovider.Provider{
				"alpha": {ProviderName: "alpha", Script: []mockprovider.Step{{Response: scriptedResponse("a")}}},
				"beta":  {ProviderName: "beta", Script: []mockprovider.Step{{Response: scriptedResponse("b")}}},
			}
			client, err := NewClient(Config{
				Registry: testRegistry(t, providers),
				Keys:     testKeys(t, tt.credentials),
			})
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}

			result, err := client.Chat(ctx, ChatRequest{
				Provider: ProviderAuto,
				Optimize: tt.optimize,
				Messages: []llm.Message{llm.UserMessage("hi")},
			})
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if result.Provider != tt.wantProvider || result.Model != tt.wantModel {
				t.Errorf("selected %s/%s, want %s/%s",
					result.Provider, result.Model, tt.wantProvider, tt.wantModel)
			}
		})
	}
}

func TestAutoSelectionNoCredentials(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(Config{
		Registry: testRegistry(t, map[string]*mockprovider.Provider{"alpha": {ProviderName: "alpha"}}),
		Keys:     testKeys(t, nil),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Chat(ctx, ChatRequest{Messages: []llm.Message{llm.UserMessage("hi")}})
	if !errors.Is(err, keys.ErrNoCredentials) {
		t.Fatalf("Chat() error = %v, want ErrNoCredentials", err)
	}
}

func TestCacheKeyCoversRequestShape(t *testing.T) {
	base := ChatRequest{System: "s", Messages: []llm.Message{llm.UserMessage("hi")}}

	same := cacheKey("alpha", "m", base)
	if cacheKey("alpha", "m", base) != same {
		t.Error("cache key must be deterministic")
	}
	if cacheKey("beta", "m", base) == same {
		t.Error("provider must shape the key")
	}
	if cacheKey("alpha", "other", base) == same {
		t.Error("model must shape the key")
	}

	withTemp := base
	temp := 0.5
	withTemp.Temperature = &temp
	if cacheKey("alpha", "m", withTemp) == same {
		t.Error("temperature must shape the key")
	}

	otherMessages := base
	otherMessages.Messages = []llm.Message{llm.UserMessage("bye")}
	if cacheKey("alpha", "m", otherMessages) == same {
		t.Error("messages must shape the key")
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}
