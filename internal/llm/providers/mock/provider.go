// Package mockprovider scripts deterministic provider behavior for tests.
package mockprovider

import (
	"context"
	"sync"

	"rana/internal/llm/core"
)

// Step is one scripted Complete outcome.
type Step struct {
	Response *core.Response
	Err      error
}

// Provider replays a fixed script of responses and records every request.
// When the script is exhausted the last step repeats.
type Provider struct {
	ProviderName string
	Script       []Step
	StreamScript [][]core.Event
	Delay        func(call int)

	mu       sync.Mutex
	calls    int
	requests []*core.Request
}

// Name implements core.Provider.
func (m *Provider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Complete replays the next scripted step.
func (m *Provider) Complete(ctx context.Context, req *core.Request) (*core.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	call := m.calls
	m.calls++
	m.requests = append(m.requests, cloneRequest(req))
	m.mu.Unlock()

	if m.Delay != nil {
		m.Delay(call)
	}

	if len(m.Script) == 0 {
		return nil, core.ErrEmptyResponse
	}
	step := m.Script[min(call, len(m.Script)-1)]
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response == nil {
		return nil, core.ErrEmptyResponse
	}
	resp := *step.Response
	return &resp, nil
}

// Stream replays the next scripted event sequence.
func (m *Provider) Stream(ctx context.Context, req *core.Request) (<-chan core.Event, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.requests = append(m.requests, cloneRequest(req))
	m.mu.Unlock()

	var script []core.Event
	if len(m.StreamScript) > 0 {
		script = m.StreamScript[min(call, len(m.StreamScript)-1)]
	}

	out := make(chan core.Event, 1)
	go func() {
		defer close(out)
		for _, ev := range script {
			select {
			case <-ctx.Done():
				core.SendTerminalEvent(out, core.Event{
					Type: core.EventError,
					Done: &core.DonePayload{Reason: core.StopReasonAborted},
					Err:  ctx.Err(),
				})
				return
			case out <- ev:
			}
		}
	}()
	return out, nil
}

// Calls reports how many requests the provider has served.
func (m *Provider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Request returns a recorded request by call index, or nil.
func (m *Provider) Request(i int) *core.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.requests) {
		return nil
	}
	return m.requests[i]
}

func cloneRequest(req *core.Request) *core.Request {
	if req == nil {
		return nil
	}
	cloned := *req
	cloned.Messages = core.CloneMessages(req.Messages)
	cloned.Tools = append([]core.ToolSpec(nil), req.Tools...)
	return &cloned
}
