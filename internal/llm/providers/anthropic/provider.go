package anthropicprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"rana/internal/llm/core"
)

// ProviderName is the registry identifier for this adapter.
const ProviderName = "anthropic"

// Config configures the Anthropic provider.
type Config struct {
	APIKey     string
	BaseURL    string
	Version    string
	HTTPClient *http.Client
}

// Provider is a thin wrapper around the official anthropic-sdk-go client.
type Provider struct {
	apiKey string
	client anthropic.Client
}

// New constructs a provider with sane defaults.
func New(cfg Config) *Provider {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	clientOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // retries belong to the resilience decorator
	}
	if baseURL := strings.TrimRight(cfg.BaseURL, "/"); baseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(baseURL))
	}
	if version := strings.TrimSpace(cfg.Version); version != "" {
		clientOptions = append(clientOptions, option.WithHeader("anthropic-version", version))
	}

	return &Provider{
		apiKey: apiKey,
		client: anthropic.NewClient(clientOptions...),
	}
}

// Name implements core.Provider.
func (p *Provider) Name() string { return ProviderName }

// Complete executes one non-streaming Messages API request.
func (p *Provider) Complete(ctx context.Context, req *core.Request) (*core.Response, error) {
	if p.apiKey == "" {
		return nil, core.ErrMissingAPIKey
	}
	params, err := toSDKParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapSDKError(err)
	}
	return toResponse(msg, req.Model)
}

// Stream executes one streaming Messages API request and emits canonical chunks.
func (p *Provider) Stream(ctx context.Context, req *core.Request) (<-chan core.Event, error) {
	if p.apiKey == "" {
		return nil, core.ErrMissingAPIKey
	}
	params, err := toSDKParams(req)
	if err != nil {
		return nil, err
	}

	events := make(chan core.Event, 1)
	go func() {
		defer close(events)
		if err := p.streamOnce(ctx, params, events); err != nil {
			reason := core.StopReasonError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = core.StopReasonAborted
			}
			core.SendTerminalEvent(events, core.Event{
				Type: core.EventError,
				Done: &core.DonePayload{Reason: reason},
				Err:  fmt.Errorf("anthropic stream: %w", err),
			})
		}
	}()

	return events, nil
}

// streamState tracks incremental response state across one stream request.
type streamState struct {
	usage        core.Usage
	reason       core.StopReason
	emittedDone  bool
	accumulators map[int]*toolCallAccumulator
}

// toolCallAccumulator incrementally reconstructs chunked JSON tool arguments.
type toolCallAccumulator struct {
	id   string
	name string
	buf  strings.Builder
}

func (p *Provider) streamOnce(ctx context.Context, params anthropic.MessageNewParams, events chan<- core.Event) error {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() {
		_ = stream.Close()
	}()

	if err := core.SendEvent(ctx, events, core.Event{Type: core.EventStart}); err != nil {
		return err
	}

	state := &streamState{
		reason:       core.StopReasonStop,
		accumulators: map[int]*toolCallAccumulator{},
	}

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handleSDKStreamEvent(ctx, stream.Current(), events, state); err != nil {
			return err
		}
		if state.emittedDone {
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		return wrapSDKError(err)
	}
	if state.emittedDone {
		return nil
	}
	return errors.New("stream ended without message_stop")
}

// wrapSDKError converts SDK API errors into the canonical transport error.
func wrapSDKError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &core.HTTPError{
			Provider:   ProviderName,
			StatusCode: apiErr.StatusCode,
			Message:    strings.TrimSpace(apiErr.Error()),
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}
