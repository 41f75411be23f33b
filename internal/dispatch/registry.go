// Package dispatch routes chat requests to registered providers, layering
// model selection, response caching, cost accounting, and metrics on top of
// the raw provider adapters.
package dispatch

import (
	"fmt"

	"rana/internal/llm"
)

// Entry binds one registered provider to its pricing and model defaults.
type Entry struct {
	Provider llm.Provider
	Rates    llm.RateTable

	// DefaultModel serves requests that name no model. BestModel and
	// CheapestModel back the quality and cost selection policies.
	DefaultModel  string
	BestModel     string
	CheapestModel string
}

// Registry is the immutable provider set, resolved once at startup. Order
// records registration preference and breaks selection ties.
type Registry struct {
	entries map[string]Entry
	order   []string
}

// NewRegistry builds a registry from name/entry pairs in preference order.
func NewRegistry(names []string, entries map[string]Entry) (*Registry, error) {
	if len(names) != len(entries) {
		return nil, fmt.Errorf("registry order lists %d names for %d entries", len(names), len(entries))
	}
	for _, name := range names {
		e, ok := entries[name]
		if !ok {
			return nil, fmt.Errorf("registry order names unregistered provider %q", name)
		}
		if e.Provider == nil {
			return nil, fmt.Errorf("provider %q has no adapter", name)
		}
		if e.DefaultModel == "" {
			return nil, fmt.Errorf("provider %q has no default model", name)
		}
	}

	frozen := make(map[string]Entry, len(entries))
	for name, e := range entries {
		if e.BestModel == "" {
			e.BestModel = e.DefaultModel
		}
		if e.CheapestModel == "" {
			e.CheapestModel = e.DefaultModel
		}
		frozen[name] = e
	}
	return &Registry{entries: frozen, order: append([]string(nil), names...)}, nil
}

// Lookup resolves a provider name. Unknown names fail synchronously, before
// any network I/O.
func (r *Registry) Lookup(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", llm.ErrUnknownProvider, name)
	}
	return e, nil
}

// Names returns provider names in preference order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
