package core

import (
	"context"
	"encoding/json"
	"time"
)

// Provider executes chat-completion requests against one model vendor.
// Complete returns the full response; Stream yields typed chunks over a
// channel that is closed after the terminal event. Both honor ctx
// cancellation between logical steps.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

// EventType identifies stream event variants.
type EventType string

const (
	EventStart      EventType = "start"
	EventThinking   EventType = "thinking"
	EventTextDelta  EventType = "text_delta"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventUsage      EventType = "usage"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

// ToolSpec describes a tool exposed to the model.
// Schema can be generated from a Go struct via NewToolSpecFromStruct.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// RetryPolicy configures retry/backoff behavior for retryable failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Request is the provider-agnostic chat request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature *float64
	Metadata    map[string]string
}

// Response is the provider-agnostic chat response.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	Usage      Usage
	Model      string
	Provider   string
	StopReason StopReason
}

// DonePayload carries the final status when a stream ends normally.
type DonePayload struct {
	Reason StopReason
	Usage  Usage
}

// Event is the provider-agnostic streaming chunk. Exactly one payload field
// is set per variant; Done or Err terminates the sequence.
type Event struct {
	Type       EventType
	TextDelta  string
	Thinking   string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Usage      *Usage
	Done       *DonePayload
	Err        error
}
