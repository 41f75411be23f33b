package openaiprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"rana/internal/llm/core"
)

// wireMessage is the chat-completions message shape.
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage wireUsage `json:"usage"`
	Model string    `json:"model"`
}

// buildRequestBody converts a canonical request into the vendor JSON body.
func buildRequestBody(req *core.Request, stream bool) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", core.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("%w: model is required", core.ErrInvalidRequest)
	}

	messages := make([]wireMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		wire, err := toWireMessage(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, wire)
	}

	body := completionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	for _, tool := range req.Tools {
		schema, err := core.DecodeToolJSONSchema(tool.Schema)
		if err != nil {
			return nil, fmt.Errorf("decode tool schema for %q: %w", tool.Name, err)
		}
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema for %q: %w", tool.Name, err)
		}
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = tool.Name
		wt.Function.Description = tool.Description
		wt.Function.Parameters = raw
		body.Tools = append(body.Tools, wt)
	}

	return json.Marshal(body)
}

func toWireMessage(msg core.Message) (wireMessage, error) {
	switch msg.Role {
	case core.RoleSystem:
		return wireMessage{Role: "system", Content: msg.Content}, nil
	case core.RoleUser:
		return wireMessage{Role: "user", Content: msg.Content}, nil
	case core.RoleAssistant:
		wire := wireMessage{Role: "assistant", Content: msg.Content}
		for _, call := range msg.ToolCalls {
			var wtc wireToolCall
			wtc.ID = call.ID
			wtc.Type = "function"
			wtc.Function.Name = call.Name
			wtc.Function.Arguments = string(call.Arguments)
			if wtc.Function.Arguments == "" {
				wtc.Function.Arguments = "{}"
			}
			wire.ToolCalls = append(wire.ToolCalls, wtc)
		}
		return wire, nil
	case core.RoleTool:
		if msg.ToolResult == nil || strings.TrimSpace(msg.ToolResult.ToolCallID) == "" {
			return wireMessage{}, fmt.Errorf("%w: tool result missing tool_call_id", core.ErrInvalidRequest)
		}
		return wireMessage{
			Role:       "tool",
			Content:    msg.ToolResult.Content,
			ToolCallID: msg.ToolResult.ToolCallID,
		}, nil
	default:
		return wireMessage{}, fmt.Errorf("%w: unsupported role %q", core.ErrInvalidRequest, msg.Role)
	}
}

// toResponse maps the vendor response into the canonical form.
func (r completionResponse) toResponse(provider, model string) (*core.Response, error) {
	if len(r.Choices) == 0 {
		return nil, core.ErrEmptyResponse
	}
	choice := r.Choices[0]

	resp := &core.Response{
		Content:    choice.Message.Content,
		Provider:   provider,
		Model:      model,
		StopReason: mapFinishReason(choice.FinishReason),
		Usage: core.Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}.Normalize(),
	}
	for _, wtc := range choice.Message.ToolCalls {
		call, err := toToolCall(wtc)
		if err != nil {
			return nil, err
		}
		resp.ToolCalls = append(resp.ToolCalls, call)
	}

	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return nil, core.ErrEmptyResponse
	}
	return resp, nil
}

func toToolCall(wtc wireToolCall) (core.ToolCall, error) {
	args := strings.TrimSpace(wtc.Function.Arguments)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return core.ToolCall{}, fmt.Errorf("%w: tool call arguments are not valid JSON", core.ErrEmptyResponse)
	}
	return core.ToolCall{
		ID:        wtc.ID,
		Name:      wtc.Function.Name,
		Arguments: json.RawMessage(args),
	}, nil
}

func mapFinishReason(reason string) core.StopReason {
	switch reason {
	case "length":
		return core.StopReasonLength
	case "tool_calls", "function_call":
		return core.StopReasonToolUse
	case "content_filter":
		return core.StopReasonError
	default:
		return core.StopReasonStop
	}
}

// streamChunk is one SSE data payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

// streamState reassembles incremental tool calls and tracks the terminal reason.
type streamState struct {
	reason       core.StopReason
	usage        core.Usage
	accumulators map[int]*toolCallAccumulator
	finished     bool
}

type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func newStreamState() *streamState {
	return &streamState{
		reason:       core.StopReasonStop,
		accumulators: map[int]*toolCallAccumulator{},
	}
}

func (s *streamState) consume(ctx context.Context, chunk streamChunk, events chan<- core.Event) error {
	if chunk.Usage != nil {
		s.usage = core.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}.Normalize()
		if err := core.SendEvent(ctx, events, core.Event{Type: core.EventUsage, Usage: s.usage.Clone()}); err != nil {
			return err
		}
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		if err := core.SendEvent(ctx, events, core.Event{Type: core.EventTextDelta, TextDelta: choice.Delta.Content}); err != nil {
			return err
		}
	}
	for _, tc := range choice.Delta.ToolCalls {
		acc, ok := s.accumulators[tc.Index]
		if !ok {
			acc = &toolCallAccumulator{}
			s.accumulators[tc.Index] = acc
		}
		if tc.ID != "" {
			acc.id = tc.ID
		}
		if tc.Function.Name != "" {
			acc.name = tc.Function.Name
		}
		acc.args.WriteString(tc.Function.Arguments)
	}
	if choice.FinishReason != "" {
		s.reason = mapFinishReason(choice.FinishReason)
	}
	return nil
}

// finish flushes reassembled tool calls and emits the done event.
func (s *streamState) finish(ctx context.Context, events chan<- core.Event) error {
	if s.finished {
		return nil
	}
	s.finished = true

	indexes := make([]int, 0, len(s.accumulators))
	for idx := range s.accumulators {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		acc := s.accumulators[idx]
		args := strings.TrimSpace(acc.args.String())
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return fmt.Errorf("tool call arguments are not valid JSON")
		}
		if err := core.SendEvent(ctx, events, core.Event{
			Type: core.EventToolCall,
			ToolCall: &core.ToolCall{
				ID:        acc.id,
				Name:      acc.name,
				Arguments: json.RawMessage(args),
			},
		}); err != nil {
			return err
		}
	}

	return core.SendEvent(ctx, events, core.Event{
		Type: core.EventDone,
		Done: &core.DonePayload{Reason: s.reason, Usage: s.usage},
	})
}
