// Package openaiprovider speaks the OpenAI chat-completions wire format.
// Groq exposes the same API shape, so one adapter serves both vendors with a
// different name, base URL, and credential.
package openaiprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rana/internal/llm/core"
)

const (
	// ProviderNameOpenAI and ProviderNameGroq are the registry identifiers
	// served by this adapter.
	ProviderNameOpenAI = "openai"
	ProviderNameGroq   = "groq"

	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultGroqBaseURL   = "https://api.groq.com/openai/v1"
)

// Config configures an OpenAI-compatible provider.
type Config struct {
	Name       string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Provider implements core.Provider over raw JSON-over-HTTPS.
type Provider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// New constructs an adapter for one OpenAI-compatible endpoint.
func New(cfg Config) *Provider {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = ProviderNameOpenAI
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		if name == ProviderNameGroq {
			baseURL = defaultGroqBaseURL
		} else {
			baseURL = defaultOpenAIBaseURL
		}
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}

	return &Provider{
		name:    name,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  client,
	}
}

// NewGroq is a convenience constructor preconfigured for Groq.
func NewGroq(apiKey string) *Provider {
	return New(Config{Name: ProviderNameGroq, APIKey: apiKey})
}

// Name implements core.Provider.
func (p *Provider) Name() string { return p.name }

// Complete executes one non-streaming chat-completions request.
func (p *Provider) Complete(ctx context.Context, req *core.Request) (*core.Response, error) {
	if p.apiKey == "" {
		return nil, core.ErrMissingAPIKey
	}
	body, err := buildRequestBody(req, false)
	if err != nil {
		return nil, err
	}

	raw, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var decoded completionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrEmptyResponse, "malformed response body")
	}
	return decoded.toResponse(p.name, req.Model)
}

// Stream executes one streaming chat-completions request (SSE).
func (p *Provider) Stream(ctx context.Context, req *core.Request) (<-chan core.Event, error) {
	if p.apiKey == "" {
		return nil, core.ErrMissingAPIKey
	}
	body, err := buildRequestBody(req, true)
	if err != nil {
		return nil, err
	}

	httpReq, err := p.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, p.httpError(resp)
	}

	events := make(chan core.Event, 1)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		if err := p.consumeSSE(ctx, resp.Body, events); err != nil {
			reason := core.StopReasonError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = core.StopReasonAborted
			}
			core.SendTerminalEvent(events, core.Event{
				Type: core.EventError,
				Done: &core.DonePayload{Reason: reason},
				Err:  fmt.Errorf("%s stream: %w", p.name, err),
			})
		}
	}()
	return events, nil
}

func (p *Provider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	return httpReq, nil
}

func (p *Provider) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := p.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, p.httpError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", p.name, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, core.ErrEmptyResponse
	}
	return raw, nil
}

// httpError drains the response body for the vendor's own error message.
func (p *Provider) httpError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	message := strings.TrimSpace(string(raw))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	return &core.HTTPError{
		Provider:   p.name,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// consumeSSE reads "data:" lines until [DONE], emitting canonical chunks.
func (p *Provider) consumeSSE(ctx context.Context, body io.Reader, events chan<- core.Event) error {
	if err := core.SendEvent(ctx, events, core.Event{Type: core.EventStart}); err != nil {
		return err
	}

	state := newStreamState()
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return state.finish(ctx, events)
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("malformed stream chunk: %w", err)
		}
		if err := state.consume(ctx, chunk, events); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return state.finish(ctx, events)
}
