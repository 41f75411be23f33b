package anthropicprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rana/internal/llm/core"
)

func TestCompleteText(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type":"text","text":"4"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 1}
		}`)
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	resp, err := p.Complete(context.Background(), &core.Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []core.Message{core.UserMessage("2+2?")},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "4" {
		t.Fatalf("Content = %q, want %q", resp.Content, "4")
	}
	if resp.Usage.PromptTokens != 5 || resp.Usage.CompletionTokens != 1 || resp.Usage.TotalTokens != 6 {
		t.Fatalf("Usage = %+v, want 5/1/6", resp.Usage)
	}
	if resp.StopReason != core.StopReasonStop {
		t.Fatalf("StopReason = %q, want %q", resp.StopReason, core.StopReasonStop)
	}
	if resp.Provider != ProviderName {
		t.Fatalf("Provider = %q, want %q", resp.Provider, ProviderName)
	}
}

func TestCompleteToolUse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
			"id": "msg_02",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [
				{"type":"text","text":"let me check"},
				{"type":"tool_use","id":"toolu_01","name":"calc","input":{"expression":"2+2"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 20, "output_tokens": 12}
		}`)
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	resp, err := p.Complete(context.Background(), &core.Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []core.Message{core.UserMessage("what is 2+2?")},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.StopReason != core.StopReasonToolUse {
		t.Fatalf("StopReason = %q, want %q", resp.StopReason, core.StopReasonToolUse)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("len(ToolCalls) = %d, want 1", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "toolu_01" || call.Name != "calc" {
		t.Fatalf("ToolCall = %+v", call)
	}

	var args struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		t.Fatalf("unmarshal arguments: %v", err)
	}
	if args.Expression != "2+2" {
		t.Fatalf("Expression = %q, want %q", args.Expression, "2+2")
	}
}

func TestCompleteHTTPErrorCarriesStatusAndProvider(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := p.Complete(context.Background(), &core.Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []core.Message{core.UserMessage("hi")},
	})
	httpErr, ok := core.AsHTTPError(err)
	if !ok {
		t.Fatalf("error = %v, want *core.HTTPError", err)
	}
	if httpErr.Provider != ProviderName {
		t.Fatalf("Provider = %q, want %q", httpErr.Provider, ProviderName)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("StatusCode = %d, want 429", httpErr.StatusCode)
	}
	if !core.IsRetryableError(err) {
		t.Fatal("429 transport error should be retryable")
	}
}

func TestCompleteMissingAPIKey(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	_, err := p.Complete(context.Background(), &core.Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []core.Message{core.UserMessage("hi")},
	})
	if err != core.ErrMissingAPIKey {
		t.Fatalf("error = %v, want ErrMissingAPIKey", err)
	}
}

func TestStreamEmitsTextDeltaAndDone(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatalf("response writer does not implement flusher")
		}

		events := []string{
			`event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":10,"output_tokens":0,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}}

`,
			`event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

`,
			`event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}

`,
			`event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":""},"usage":{"input_tokens":10,"output_tokens":2,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}

`,
			`event: message_stop
data: {"type":"message_stop"}

`,
		}
		for _, chunk := range events {
			_, _ = fmt.Fprint(w, chunk)
			flusher.Flush()
		}
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := p.Stream(ctx, &core.Request{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 128,
		Messages:  []core.Message{core.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var seenDelta, seenDone bool
	var doneUsage core.Usage
	for ev := range stream {
		switch ev.Type {
		case core.EventTextDelta:
			if ev.TextDelta == "hi" {
				seenDelta = true
			}
		case core.EventDone:
			seenDone = true
			doneUsage = ev.Done.Usage
		case core.EventError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if !seenDelta || !seenDone {
		t.Fatalf("expected delta+done events, got delta=%v done=%v", seenDelta, seenDone)
	}
	if doneUsage.CompletionTokens != 2 || doneUsage.TotalTokens != 12 {
		t.Fatalf("done usage = %+v, want completion=2 total=12", doneUsage)
	}
}

func TestStreamCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = fmt.Fprint(w, `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":1,"output_tokens":0}}}

`)
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := p.Stream(ctx, &core.Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []core.Message{core.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	cancel()

	var lastType core.EventType
	for ev := range stream {
		lastType = ev.Type
	}
	if lastType != core.EventError {
		t.Fatalf("last event = %q, want error terminal after cancellation", lastType)
	}
}
