// Package orchestrator coordinates multiple agents under a fixed strategy
// chosen at construction time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"rana/internal/agent"
)

// Strategy selects how member agents cooperate on a task.
type Strategy string

const (
	// StrategySequential runs members in priority order, each output feeding
	// the next member's input. The first failure aborts the chain.
	StrategySequential Strategy = "sequential"
	// StrategyParallel fans the same task out to every member, bounded by
	// the concurrency cap. Failures are isolated per member.
	StrategyParallel Strategy = "parallel"
	// StrategyHierarchical gives the top-priority member a delegate tool
	// that can hand sub-tasks to the others.
	StrategyHierarchical Strategy = "hierarchical"
	// StrategyRouter picks exactly one member per task.
	StrategyRouter Strategy = "router"
)

const defaultConcurrency = 4

var (
	// ErrNoMembers indicates an orchestrator with no agents.
	ErrNoMembers = errors.New("at least one member agent is required")
	// ErrUnknownStrategy indicates an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown orchestration strategy")
	// ErrNoSuccessfulResults indicates every parallel member failed.
	ErrNoSuccessfulResults = errors.New("no successful results")
)

// Runner is the slice of an agent the orchestrator drives.
type Runner interface {
	Run(ctx context.Context, prompt string) (*agent.RunResult, error)
}

// Member is one agent in the ensemble. Lower Priority runs earlier;
// Capabilities feed the router heuristic.
type Member struct {
	Name         string
	Runner       Runner
	Priority     int
	Capabilities []string
}

// RouterFunc picks the member name to handle a task.
type RouterFunc func(task string, members []Member) string

// Config configures orchestrator creation. Coordinator is required for the
// hierarchical strategy: the delegate tool is registered into its tool set
// and the resulting agent leads the ensemble.
type Config struct {
	Strategy    Strategy
	Members     []Member
	Concurrency int
	Router      RouterFunc
	Coordinator *agent.Config
}

// Output is one member's finished contribution.
type Output struct {
	Agent   string
	Content string
	Err     error
}

// Result is a finished orchestration.
type Result struct {
	Content string
	Outputs []Output
}

// Orchestrator runs a fixed member set under one strategy.
type Orchestrator struct {
	strategy    Strategy
	members     []Member
	concurrency int
	router      RouterFunc
	coordinator Runner
}

// New validates the configuration and freezes the ensemble.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Members) == 0 {
		return nil, ErrNoMembers
	}
	for _, m := range cfg.Members {
		if m.Name == "" || m.Runner == nil {
			return nil, fmt.Errorf("member %q needs a name and a runner", m.Name)
		}
	}

	members := append([]Member(nil), cfg.Members...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].Priority < members[j].Priority })

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	o := &Orchestrator{
		strategy:    cfg.Strategy,
		members:     members,
		concurrency: concurrency,
		router:      cfg.Router,
	}

	switch cfg.Strategy {
	case StrategySequential, StrategyParallel, StrategyRouter:
	case StrategyHierarchical:
		if cfg.Coordinator == nil {
			return nil, errors.New("hierarchical strategy requires a coordinator config")
		}
		coordinator, err := buildCoordinator(*cfg.Coordinator, members)
		if err != nil {
			return nil, fmt.Errorf("build coordinator: %w", err)
		}
		o.coordinator = coordinator
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
	return o, nil
}

// Run executes the task under the configured strategy.
func (o *Orchestrator) Run(ctx context.Context, task string) (*Result, error) {
	switch o.strategy {
	case StrategySequential:
		return o.runSequential(ctx, task)
	case StrategyParallel:
		return o.runParallel(ctx, task)
	case StrategyHierarchical:
		return o.runHierarchical(ctx, task)
	default:
		return o.runRouted(ctx, task)
	}
}

func (o *Orchestrator) runSequential(ctx context.Context, task string) (*Result, error) {
	result := &Result{}
	input := task
	for _, m := range o.members {
		run, err := m.Runner.Run(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", m.Name, err)
		}
		result.Outputs = append(result.Outputs, Output{Agent: m.Name, Content: run.Content})
		input = run.Content
	}
	result.Content = input
	return result, nil
}

func (o *Orchestrator) runParallel(ctx context.Context, task string) (*Result, error) {
	outputs := make([]Output, len(o.members))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for i, m := range o.members {
		wg.Add(1)
		go func(i int, m Member) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			run, err := m.Runner.Run(ctx, task)
			if err != nil {
				outputs[i] = Output{Agent: m.Name, Err: err}
				return
			}
			outputs[i] = Output{Agent: m.Name, Content: run.Content}
		}(i, m)
	}
	wg.Wait()

	var sections []string
	for _, out := range outputs {
		if out.Err != nil {
			continue
		}
		sections = append(sections, fmt.Sprintf("[%s]\n%s", out.Agent, out.Content))
	}
	if len(sections) == 0 {
		return nil, ErrNoSuccessfulResults
	}
	return &Result{Content: strings.Join(sections, "\n\n"), Outputs: outputs}, nil
}

func (o *Orchestrator) runHierarchical(ctx context.Context, task string) (*Result, error) {
	run, err := o.coordinator.Run(ctx, task)
	if err != nil {
		return nil, err
	}
	return &Result{
		Content: run.Content,
		Outputs: []Output{{Agent: "coordinator", Content: run.Content}},
	}, nil
}

func (o *Orchestrator) runRouted(ctx context.Context, task string) (*Result, error) {
	route := o.router
	if route == nil {
		route = keywordRouter
	}
	name := route(task, o.members)

	member := o.members[0]
	for _, m := range o.members {
		if m.Name == name {
			member = m
			break
		}
	}

	run, err := member.Runner.Run(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("agent %q: %w", member.Name, err)
	}
	return &Result{
		Content: run.Content,
		Outputs: []Output{{Agent: member.Name, Content: run.Content}},
	}, nil
}

// keywordRouter scores members by word overlap between the task and their
// declared capabilities, defaulting to the first member on a blank score.
func keywordRouter(task string, members []Member) string {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(task)) {
		words[strings.Trim(w, ".,!?:;\"'")] = true
	}

	bestName := members[0].Name
	bestScore := 0
	for _, m := range members {
		score := 0
		for _, capability := range m.Capabilities {
			if words[strings.ToLower(capability)] {
				score++
			}
		}
		if score > bestScore {
			bestName, bestScore = m.Name, score
		}
	}
	return bestName
}
