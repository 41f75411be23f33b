package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"rana/internal/dispatch"
	"rana/internal/keys"
	"rana/internal/llm"
	mockprovider "rana/internal/llm/providers/mock"
	"rana/internal/tools"
)

func testClient(t *testing.T, mock *mockprovider.Provider) *dispatch.Client {
	t.Helper()

	registry, err := dispatch.NewRegistry([]string{"alpha"}, map[string]dispatch.Entry{
		"alpha": {
			Provider:     mock,
			Rates:        llm.RateTable{"test-model": {InputPerKTokUSD: 0.003, OutputPerKTokUSD: 0.015}},
			DefaultModel: "test-model",
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	km, err := keys.New(keys.Config{Tier: keys.TierFree, Credentials: map[string]string{"alpha": "k"}})
	if err != nil {
		t.Fatalf("keys.New() error = %v", err)
	}
	client, err := dispatch.NewClient(dispatch.Config{Registry: registry, Keys: km})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func toolCallResponse(content string, calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{
		Content:    content,
		ToolCalls:  calls,
		Usage:      llm.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
		StopReason: llm.StopReasonToolUse,
	}
}

func answerResponse(content string) *llm.Response {
	return &llm.Response{
		Content:    content,
		Usage:      llm.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
		StopReason: llm.StopReasonStop,
	}
}

func calcCall(id, expression string) llm.ToolCall {
	args, _ := json.Marshal(map[string]string{"expression": expression})
	return llm.ToolCall{ID: id, Name: "calc", Arguments: args}
}

func TestAgentRunsToolThenAnswers(t *testing.T) {
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script: []mockprovider.Step{
			{Response: toolCallResponse("", calcCall("t1", "1+1"))},
			{Response: answerResponse("The answer is 2")},
		},
	}
	a, err := New(Config{
		Client:   testClient(t, mock),
		Tools:    tools.NewRegistry(tools.NewCalcTool()),
		Provider: "alpha",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := a.Run(context.Background(), "what is 1+1?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Content != "The answer is 2" {
		t.Errorf("Content = %q", result.Content)
	}
	if result.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", result.Iterations)
	}
	if mock.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", mock.Calls())
	}
	if result.Usage.TotalTokens != 12 {
		t.Errorf("accumulated TotalTokens = %d, want 12", result.Usage.TotalTokens)
	}

	// user, assistant(tool call), tool result, assistant answer
	if len(result.Messages) != 4 {
		t.Fatalf("history holds %d messages, want 4", len(result.Messages))
	}
	toolMsg := result.Messages[2]
	if toolMsg.Role != llm.RoleTool || toolMsg.ToolResult == nil {
		t.Fatalf("message 2 = %+v, want tool result", toolMsg)
	}
	if toolMsg.ToolResult.Content != "2" || toolMsg.ToolResult.IsError {
		t.Errorf("tool result = %+v, want content 2", toolMsg.ToolResult)
	}

	// The follow-up provider call must carry the full history.
	second := mock.Request(1)
	if second == nil || len(second.Messages) != 3 {
		t.Fatalf("second request history = %+v, want 3 messages", second)
	}
}

func TestAgentMaxIterationsWithoutContent(t *testing.T) {
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script: []mockprovider.Step{
			{Response: toolCallResponse("", calcCall("t1", "1+1"))},
		},
	}
	a, err := New(Config{
		Client:        testClient(t, mock),
		Tools:         tools.NewRegistry(tools.NewCalcTool()),
		Provider:      "alpha",
		MaxIterations: 3,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = a.Run(context.Background(), "loop forever")
	if !errors.Is(err, llm.ErrMaxIterations) {
		t.Fatalf("Run() error = %v, want ErrMaxIterations", err)
	}
	if mock.Calls() != 3 {
		t.Errorf("provider calls = %d, want exactly the cap", mock.Calls())
	}
}

func TestAgentMaxIterationsKeepsLastContent(t *testing.T) {
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script: []mockprovider.Step{
			{Response: toolCallResponse("working on it", calcCall("t1", "1+1"))},
		},
	}
	a, err := New(Config{
		Client:        testClient(t, mock),
		Tools:         tools.NewRegistry(tools.NewCalcTool()),
		Provider:      "alpha",
		MaxIterations: 2,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := a.Run(context.Background(), "loop")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Content != "working on it" {
		t.Errorf("Content = %q, want the last assistant content", result.Content)
	}
}

func TestAgentEmptyResponse(t *testing.T) {
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script: []mockprovider.Step{
			{Response: &llm.Response{Usage: llm.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6}}},
		},
	}
	a, err := New(Config{Client: testClient(t, mock), Provider: "alpha"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = a.Run(context.Background(), "hi")
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("Run() error = %v, want ErrEmptyResponse", err)
	}
}

func TestAgentToolFailureIsFedBack(t *testing.T) {
	badCall := llm.ToolCall{ID: "t1", Name: "calc", Arguments: json.RawMessage(`{"expression":"1/0"}`)}
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script: []mockprovider.Step{
			{Response: toolCallResponse("", badCall)},
			{Response: answerResponse("cannot divide by zero")},
		},
	}
	a, err := New(Config{
		Client:   testClient(t, mock),
		Tools:    tools.NewRegistry(tools.NewCalcTool()),
		Provider: "alpha",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := a.Run(context.Background(), "divide")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	toolMsg := result.Messages[2]
	if toolMsg.ToolResult == nil || !toolMsg.ToolResult.IsError {
		t.Fatalf("tool result = %+v, want a failed result", toolMsg.ToolResult)
	}
	if result.Content != "cannot divide by zero" {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestAgentAbortsOnCanceledContext(t *testing.T) {
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script:       []mockprovider.Step{{Response: answerResponse("never")}},
	}
	a, err := New(Config{Client: testClient(t, mock), Provider: "alpha"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Run(ctx, "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if mock.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0", mock.Calls())
	}
}

func TestAgentRunStreamEventOrder(t *testing.T) {
	mock := &mockprovider.Provider{
		ProviderName: "alpha",
		Script: []mockprovider.Step{
			{Response: toolCallResponse("", calcCall("t1", "2*3"))},
			{Response: answerResponse("6")},
		},
	}
	a, err := New(Config{
		Client:   testClient(t, mock),
		Tools:    tools.NewRegistry(tools.NewCalcTool()),
		Provider: "alpha",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stream, err := a.RunStream(context.Background(), "what is 2*3?")
	if err != nil {
		t.Fatalf("RunStream() error = %v", err)
	}

	var types []llm.EventType
	for ev := range stream {
		types = append(types, ev.Type)
		if ev.Type == llm.EventError {
			t.Fatalf("stream error event: %v", ev.Err)
		}
	}

	want := []llm.EventType{
		llm.EventStart,
		llm.EventToolCall,
		llm.EventToolResult,
		llm.EventTextDelta,
		llm.EventDone,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestAgentValidation(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrClientRequired) {
		t.Errorf("New() error = %v, want ErrClientRequired", err)
	}

	mock := &mockprovider.Provider{ProviderName: "alpha"}
	a, err := New(Config{Client: testClient(t, mock), Provider: "alpha"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Run(context.Background(), ""); !errors.Is(err, ErrPromptRequired) {
		t.Errorf("Run(empty) error = %v, want ErrPromptRequired", err)
	}
}
