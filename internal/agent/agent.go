// Package agent runs the model/tool iteration loop on top of the dispatch
// client.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rana/internal/dispatch"
	"rana/internal/llm"
	"rana/internal/tools"
)

const defaultMaxIterations = 10

// State is the high-level runtime status of the agent.
type State string

const (
	StateIdle          State = "idle"
	StateThinking      State = "thinking"
	StateToolExecuting State = "tool_executing"
)

var (
	// ErrClientRequired indicates a missing dispatch client dependency.
	ErrClientRequired = errors.New("dispatch client is required")
	// ErrPromptRequired indicates an empty run prompt.
	ErrPromptRequired = errors.New("prompt is required")
	// ErrAgentBusy indicates an attempt to start a run while one is active.
	ErrAgentBusy = errors.New("agent is already running")
)

// Dispatcher is the slice of the dispatch client the agent needs.
type Dispatcher interface {
	Chat(ctx context.Context, req dispatch.ChatRequest) (*dispatch.ChatResult, error)
}

// Config configures Agent creation. Tools is optional; without it the agent
// is a plain single-shot conversation runner.
type Config struct {
	Client        Dispatcher
	Tools         *tools.Registry
	Provider      string
	Model         string
	System        string
	SessionID     string
	MaxIterations int
}

// Agent drives the iterate-until-final-answer loop: ask the model, execute
// any requested tools, feed results back, and stop on a plain answer.
type Agent struct {
	client        Dispatcher
	tools         *tools.Registry
	provider      string
	model         string
	system        string
	sessionID     string
	maxIterations int

	mu    sync.Mutex
	state State
}

// RunResult is a finished run with accumulated accounting.
type RunResult struct {
	Content    string
	Messages   []llm.Message
	Iterations int
	Usage      llm.Usage
	CostUSD    float64
}

// New creates an agent with explicit dependencies.
func New(cfg Config) (*Agent, error) {
	if cfg.Client == nil {
		return nil, ErrClientRequired
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Agent{
		client:        cfg.Client,
		tools:         cfg.Tools,
		provider:      cfg.Provider,
		model:         cfg.Model,
		system:        cfg.System,
		sessionID:     cfg.SessionID,
		maxIterations: maxIterations,
		state:         StateIdle,
	}, nil
}

// Run executes the loop for one user prompt and blocks until it resolves.
func (a *Agent) Run(ctx context.Context, prompt string) (*RunResult, error) {
	if prompt == "" {
		return nil, ErrPromptRequired
	}
	if err := a.begin(); err != nil {
		return nil, err
	}
	defer a.finish()

	return a.runLoop(ctx, prompt, nil)
}

// RunStream executes the loop while publishing typed progress events. The
// channel closes after a terminal done or error event.
func (a *Agent) RunStream(ctx context.Context, prompt string) (<-chan llm.Event, error) {
	if prompt == "" {
		return nil, ErrPromptRequired
	}
	if err := a.begin(); err != nil {
		return nil, err
	}

	out := make(chan llm.Event, 1)
	go func() {
		defer close(out)
		defer a.finish()

		_ = llm.SendEvent(ctx, out, llm.Event{Type: llm.EventStart})
		result, err := a.runLoop(ctx, prompt, out)
		if err != nil {
			reason := llm.StopReasonError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = llm.StopReasonAborted
			}
			llm.SendTerminalEvent(out, llm.Event{
				Type: llm.EventError,
				Done: &llm.DonePayload{Reason: reason},
				Err:  err,
			})
			return
		}
		llm.SendTerminalEvent(out, llm.Event{
			Type: llm.EventDone,
			Done: &llm.DonePayload{Reason: llm.StopReasonStop, Usage: result.Usage},
		})
	}()
	return out, nil
}

// runLoop is the shared loop body. A nil events channel runs silently.
func (a *Agent) runLoop(ctx context.Context, prompt string, events chan<- llm.Event) (*RunResult, error) {
	result := &RunResult{
		Messages: []llm.Message{llm.UserMessage(prompt)},
	}
	lastContent := ""

	var specs []llm.ToolSpec
	if a.tools != nil {
		specs = a.tools.Specs()
	}

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.setState(StateThinking)
		res, err := a.client.Chat(ctx, dispatch.ChatRequest{
			Provider:  a.provider,
			Model:     a.model,
			Optimize:  dispatch.OptimizeBalanced,
			System:    a.system,
			Messages:  result.Messages,
			Tools:     specs,
			SessionID: a.sessionID,
		})
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration+1, err)
		}

		result.Iterations = iteration + 1
		result.Usage.PromptTokens += res.Usage.PromptTokens
		result.Usage.CompletionTokens += res.Usage.CompletionTokens
		result.Usage.TotalTokens += res.Usage.TotalTokens
		result.CostUSD += res.Cost.TotalUSD

		assistant := llm.Message{
			Role:      llm.RoleAssistant,
			Content:   res.Content,
			ToolCalls: res.ToolCalls,
		}
		result.Messages = append(result.Messages, assistant)
		if res.Content != "" {
			lastContent = res.Content
			if events != nil {
				if err := llm.SendEvent(ctx, events, llm.Event{Type: llm.EventTextDelta, TextDelta: res.Content}); err != nil {
					return nil, err
				}
			}
		}

		if len(res.ToolCalls) == 0 {
			if res.Content == "" {
				return nil, llm.ErrEmptyResponse
			}
			result.Content = res.Content
			return result, nil
		}

		for _, call := range res.ToolCalls {
			toolMessage, err := a.executeToolCall(ctx, call, events)
			if err != nil {
				return nil, err
			}
			result.Messages = append(result.Messages, toolMessage)
		}
	}

	// Budget exhausted: surface whatever the model last said, if anything.
	if lastContent != "" {
		result.Content = lastContent
		return result, nil
	}
	return nil, fmt.Errorf("%w after %d iterations", llm.ErrMaxIterations, a.maxIterations)
}

// executeToolCall runs one tool. Tool failures never abort the loop; they are
// fed back to the model as failed results. Cancellation does abort.
func (a *Agent) executeToolCall(ctx context.Context, call llm.ToolCall, events chan<- llm.Event) (llm.Message, error) {
	a.setState(StateToolExecuting)
	defer a.setState(StateThinking)

	if events != nil {
		toolCall := call
		if err := llm.SendEvent(ctx, events, llm.Event{Type: llm.EventToolCall, ToolCall: &toolCall}); err != nil {
			return llm.Message{}, err
		}
	}

	var (
		content string
		isError bool
	)
	if a.tools == nil {
		content = fmt.Sprintf("no tool registry configured, cannot run %q", call.Name)
		isError = true
	} else {
		toolResult, err := a.tools.Execute(ctx, call.Name, call.Arguments)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return llm.Message{}, err
		}
		content = toolResult.Content
		if err != nil {
			isError = true
			if content == "" {
				content = fmt.Sprintf("error: %v", err)
			} else {
				content = fmt.Sprintf("%s\nerror: %v", content, err)
			}
		}
		if content == "" {
			content = "ok"
		}
	}

	toolResult := llm.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    content,
		IsError:    isError,
	}
	if events != nil {
		forwarded := toolResult
		if err := llm.SendEvent(ctx, events, llm.Event{Type: llm.EventToolResult, ToolResult: &forwarded}); err != nil {
			return llm.Message{}, err
		}
	}
	return llm.ToolResultMessage(toolResult), nil
}

// State returns the current agent status.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle {
		return ErrAgentBusy
	}
	a.state = StateThinking
	return nil
}

func (a *Agent) finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateIdle
}

func (a *Agent) setState(next State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = next
}
