package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"rana/internal/agent"
	"rana/internal/tools"
)

const delegateToolName = "delegate"

// buildCoordinator registers the delegate tool alongside the coordinator's
// own tools and constructs the leading agent.
func buildCoordinator(cfg agent.Config, members []Member) (Runner, error) {
	registry := tools.NewRegistry()
	if cfg.Tools != nil {
		for _, tool := range cfg.Tools.Tools() {
			if err := registry.Register(tool); err != nil {
				return nil, err
			}
		}
	}
	if err := registry.Register(newDelegateTool(members)); err != nil {
		return nil, err
	}
	cfg.Tools = registry
	return agent.New(cfg)
}

// delegateTool hands a sub-task to a named member agent and returns its
// final answer as the tool result.
type delegateTool struct {
	runners map[string]Runner
	names   []string
}

func newDelegateTool(members []Member) *delegateTool {
	d := &delegateTool{runners: make(map[string]Runner, len(members))}
	for _, m := range members {
		d.runners[m.Name] = m.Runner
		d.names = append(d.names, m.Name)
	}
	return d
}

func (*delegateTool) Name() string { return delegateToolName }

func (d *delegateTool) Description() string {
	return fmt.Sprintf("Delegate a sub-task to another agent. Available agents: %s.",
		strings.Join(d.names, ", "))
}

func (d *delegateTool) Schema() json.RawMessage {
	enum, _ := json.Marshal(d.names)
	schema := fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"agent": {"type": "string", "enum": %s},
			"task": {"type": "string"}
		},
		"required": ["agent", "task"]
	}`, enum)
	return json.RawMessage(schema)
}

func (d *delegateTool) Execute(ctx context.Context, params json.RawMessage) (tools.Result, error) {
	var input struct {
		Agent string `json:"agent"`
		Task  string `json:"task"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.Result{}, fmt.Errorf("decode delegate params: %w", err)
	}
	runner, ok := d.runners[input.Agent]
	if !ok {
		return tools.Result{}, fmt.Errorf("unknown agent %q", input.Agent)
	}
	if strings.TrimSpace(input.Task) == "" {
		return tools.Result{}, fmt.Errorf("task is required")
	}

	run, err := runner.Run(ctx, input.Task)
	if err != nil {
		return tools.Result{}, fmt.Errorf("agent %q: %w", input.Agent, err)
	}
	return tools.Result{Content: run.Content}, nil
}
