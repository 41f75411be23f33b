package anthropicprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"rana/internal/llm/core"
)

// defaultMaxTokens is used when callers do not provide an explicit token budget.
const defaultMaxTokens = 1024

// mapStopReason maps Anthropic stop reasons to canonical values.
func mapStopReason(reason string) core.StopReason {
	switch reason {
	case "max_tokens":
		return core.StopReasonLength
	case "tool_use":
		return core.StopReasonToolUse
	case "refusal", "sensitive":
		return core.StopReasonError
	default:
		return core.StopReasonStop
	}
}

// toSDKParams validates and converts a canonical request into SDK params.
func toSDKParams(req *core.Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: request is nil", core.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Model) == "" {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: model is required", core.ErrInvalidRequest)
	}

	messages, err := toSDKMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	system := req.System
	for _, msg := range req.Messages {
		// System turns in the history fold into the system prompt; the
		// Messages API has no system role.
		if msg.Role == core.RoleSystem && strings.TrimSpace(msg.Content) != "" {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		}
	}
	if strings.TrimSpace(system) != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := toSDKTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	if userID := strings.TrimSpace(req.Metadata["user_id"]); userID != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(userID)}
	}

	return params, nil
}

// toSDKMessages converts canonical conversation messages into SDK messages.
// Consecutive tool-result turns group into one user message, matching the
// Messages API tool protocol.
func toSDKMessages(messages []core.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		switch msg.Role {
		case core.RoleSystem:
			// Folded into params.System by toSDKParams.
		case core.RoleUser:
			if msg.Content == "" {
				continue
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case core.RoleAssistant:
			blocks := toSDKAssistantBlocks(msg)
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case core.RoleTool:
			blocks, next, err := collectSDKToolResultBlocks(messages, i)
			if err != nil {
				return nil, err
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
			i = next
		default:
			return nil, fmt.Errorf("%w: unsupported role %q", core.ErrInvalidRequest, msg.Role)
		}
	}

	return out, nil
}

// toSDKAssistantBlocks builds assistant blocks, including tool_use blocks when present.
func toSDKAssistantBlocks(msg core.Message) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
	if msg.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		if strings.TrimSpace(call.ID) == "" || strings.TrimSpace(call.Name) == "" {
			continue
		}
		input := core.DecodeJSONObjectOrEmpty(call.Arguments)
		blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
	}
	return blocks
}

// collectSDKToolResultBlocks groups consecutive tool-result messages into one SDK user message.
func collectSDKToolResultBlocks(messages []core.Message, start int) ([]anthropic.ContentBlockParamUnion, int, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0)
	last := start

	for j := start; j < len(messages); j++ {
		msg := messages[j]
		if msg.Role != core.RoleTool {
			break
		}
		last = j

		if msg.ToolResult == nil {
			continue
		}
		tr := msg.ToolResult
		if strings.TrimSpace(tr.ToolCallID) == "" {
			return nil, 0, fmt.Errorf("%w: tool result missing tool_call_id", core.ErrInvalidRequest)
		}
		blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
	}

	return blocks, last, nil
}

// toSDKTools converts canonical tool specs into SDK tool definitions.
func toSDKTools(tools []core.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema, err := core.DecodeToolJSONSchema(tool.Schema)
		if err != nil {
			return nil, fmt.Errorf("decode tool schema for %q: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolParam{
			Name: tool.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		if strings.TrimSpace(tool.Description) != "" {
			toolParam.Description = anthropic.String(tool.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out, nil
}

// toResponse maps a completed SDK message into the canonical response.
func toResponse(msg *anthropic.Message, model string) (*core.Response, error) {
	if msg == nil {
		return nil, core.ErrEmptyResponse
	}

	resp := &core.Response{
		Model:      model,
		Provider:   ProviderName,
		StopReason: mapStopReason(string(msg.StopReason)),
		Usage: core.Usage{
			PromptTokens:     int(msg.Usage.InputTokens + msg.Usage.CacheReadInputTokens + msg.Usage.CacheCreationInputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		}.Normalize(),
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			raw, err := core.MarshalToolInput(b.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool_use input: %w", err)
			}
			resp.ToolCalls = append(resp.ToolCalls, core.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: raw,
			})
		}
	}
	resp.Content = text.String()

	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return nil, core.ErrEmptyResponse
	}
	return resp, nil
}

// handleSDKStreamEvent maps raw Anthropic stream events into canonical chunks.
func handleSDKStreamEvent(
	ctx context.Context,
	event anthropic.MessageStreamEventUnion,
	events chan<- core.Event,
	state *streamState,
) error {
	switch variant := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		state.usage.PromptTokens = int(variant.Message.Usage.InputTokens +
			variant.Message.Usage.CacheReadInputTokens +
			variant.Message.Usage.CacheCreationInputTokens)
		state.usage.CompletionTokens = int(variant.Message.Usage.OutputTokens)
		state.usage.TotalTokens = state.usage.PromptTokens + state.usage.CompletionTokens
		return core.SendEvent(ctx, events, core.Event{Type: core.EventUsage, Usage: state.usage.Clone()})

	case anthropic.ContentBlockStartEvent:
		switch block := variant.ContentBlock.AsAny().(type) {
		case anthropic.ThinkingBlock:
			return core.SendEvent(ctx, events, core.Event{Type: core.EventThinking, Thinking: block.Thinking})
		case anthropic.ToolUseBlock:
			rawInput, err := core.MarshalToolInput(block.Input)
			if err != nil {
				return fmt.Errorf("marshal tool_use input: %w", err)
			}
			acc := &toolCallAccumulator{id: block.ID, name: block.Name}
			if len(rawInput) > 0 && string(rawInput) != "{}" {
				_, _ = acc.buf.Write(rawInput)
			}
			state.accumulators[int(variant.Index)] = acc
		}
		return nil

	case anthropic.ContentBlockDeltaEvent:
		switch delta := variant.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return core.SendEvent(ctx, events, core.Event{Type: core.EventTextDelta, TextDelta: delta.Text})
		case anthropic.ThinkingDelta:
			return core.SendEvent(ctx, events, core.Event{Type: core.EventThinking, Thinking: delta.Thinking})
		case anthropic.InputJSONDelta:
			if acc, ok := state.accumulators[int(variant.Index)]; ok {
				_, _ = acc.buf.WriteString(delta.PartialJSON)
			}
		}
		return nil

	case anthropic.ContentBlockStopEvent:
		acc, ok := state.accumulators[int(variant.Index)]
		if !ok {
			return nil
		}
		delete(state.accumulators, int(variant.Index))

		rawArgs := strings.TrimSpace(acc.buf.String())
		if rawArgs == "" {
			rawArgs = "{}"
		}
		if !json.Valid([]byte(rawArgs)) {
			return fmt.Errorf("tool_call arguments are not valid JSON")
		}
		return core.SendEvent(ctx, events, core.Event{
			Type: core.EventToolCall,
			ToolCall: &core.ToolCall{
				ID:        acc.id,
				Name:      acc.name,
				Arguments: json.RawMessage(rawArgs),
			},
		})

	case anthropic.MessageDeltaEvent:
		if variant.Delta.StopReason != "" {
			state.reason = mapStopReason(string(variant.Delta.StopReason))
		}
		state.usage.CompletionTokens = int(variant.Usage.OutputTokens)
		state.usage.TotalTokens = state.usage.PromptTokens + state.usage.CompletionTokens
		return nil

	case anthropic.MessageStopEvent:
		state.emittedDone = true
		return core.SendEvent(ctx, events, core.Event{
			Type: core.EventDone,
			Done: &core.DonePayload{Reason: state.reason, Usage: state.usage},
		})
	}

	return nil
}
