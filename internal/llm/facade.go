package llm

import (
	"context"

	"rana/internal/llm/core"
	anthropicprovider "rana/internal/llm/providers/anthropic"
	mockprovider "rana/internal/llm/providers/mock"
	openaiprovider "rana/internal/llm/providers/openai"
)

type (
	// Provider is the public chat provider contract.
	Provider = core.Provider

	// Request/Response define the canonical chat protocol.
	Request  = core.Request
	Response = core.Response

	// EventType enumerates stream chunk variants.
	EventType = core.EventType

	// Event and DonePayload define the public stream protocol.
	Event       = core.Event
	DonePayload = core.DonePayload

	// Conversation-model aliases.
	Role       = core.Role
	StopReason = core.StopReason
	Message    = core.Message
	ToolCall   = core.ToolCall
	ToolResult = core.ToolResult
	ToolSpec   = core.ToolSpec
	Usage      = core.Usage

	// Pricing aliases.
	ModelRate = core.ModelRate
	RateTable = core.RateTable
	Cost      = core.Cost

	// RetryPolicy configures the resilience decorator backoff.
	RetryPolicy = core.RetryPolicy

	// HTTPError is the typed transport failure.
	HTTPError = core.HTTPError

	// Provider-specific configuration and implementations.
	AnthropicConfig   = anthropicprovider.Config
	AnthropicProvider = anthropicprovider.Provider
	OpenAIConfig      = openaiprovider.Config
	OpenAIProvider    = openaiprovider.Provider

	// MockProvider replays scripted responses for tests.
	MockProvider = mockprovider.Provider
	MockStep     = mockprovider.Step
)

const (
	EventStart      = core.EventStart
	EventThinking   = core.EventThinking
	EventTextDelta  = core.EventTextDelta
	EventToolCall   = core.EventToolCall
	EventToolResult = core.EventToolResult
	EventUsage      = core.EventUsage
	EventDone       = core.EventDone
	EventError      = core.EventError

	RoleSystem    = core.RoleSystem
	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant
	RoleTool      = core.RoleTool

	StopReasonStop    = core.StopReasonStop
	StopReasonLength  = core.StopReasonLength
	StopReasonToolUse = core.StopReasonToolUse
	StopReasonError   = core.StopReasonError
	StopReasonAborted = core.StopReasonAborted

	ProviderAnthropic = anthropicprovider.ProviderName
	ProviderOpenAI    = openaiprovider.ProviderNameOpenAI
	ProviderGroq      = openaiprovider.ProviderNameGroq
)

var (
	// ErrInvalidRequest indicates malformed canonical request payloads.
	ErrInvalidRequest = core.ErrInvalidRequest
	// ErrMissingAPIKey indicates missing provider credentials.
	ErrMissingAPIKey = core.ErrMissingAPIKey
	// ErrUnknownProvider indicates a provider outside the registry.
	ErrUnknownProvider = core.ErrUnknownProvider
	// ErrEmptyResponse indicates a usable-content-free provider reply.
	ErrEmptyResponse = core.ErrEmptyResponse
	// ErrMaxIterations indicates an exhausted agent loop budget.
	ErrMaxIterations = core.ErrMaxIterations
)

// SendEvent forwards a stream event unless ctx is already canceled.
func SendEvent(ctx context.Context, events chan<- Event, event Event) error {
	return core.SendEvent(ctx, events, event)
}

// SendTerminalEvent emits a terminal event without blocking on a stopped
// consumer; the channel needs buffer capacity of at least 1.
func SendTerminalEvent(events chan<- Event, event Event) {
	core.SendTerminalEvent(events, event)
}

// UserMessage builds a plain user turn.
func UserMessage(content string) Message {
	return core.UserMessage(content)
}

// AssistantMessage builds a plain assistant turn.
func AssistantMessage(content string) Message {
	return core.AssistantMessage(content)
}

// ToolResultMessage builds a tool-result turn for a prior tool call.
func ToolResultMessage(result ToolResult) Message {
	return core.ToolResultMessage(result)
}

// CloneMessages deep-copies a conversation slice.
func CloneMessages(messages []Message) []Message {
	return core.CloneMessages(messages)
}

// NewToolSpecFromStruct reflects a Go struct into a normalized tool schema.
func NewToolSpecFromStruct(name, description string, schemaStruct any) (ToolSpec, error) {
	return core.NewToolSpecFromStruct(name, description, schemaStruct)
}

// CalculateCost computes the USD cost split for a usage snapshot.
func CalculateCost(u Usage, r ModelRate) Cost {
	return core.CalculateCost(u, r)
}

// NewAnthropicProvider constructs an Anthropic provider with normalized defaults.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	return anthropicprovider.New(cfg)
}

// NewOpenAIProvider constructs an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return openaiprovider.New(cfg)
}

// NewGroqProvider constructs a Groq provider (OpenAI wire shape).
func NewGroqProvider(apiKey string) *OpenAIProvider {
	return openaiprovider.NewGroq(apiKey)
}
