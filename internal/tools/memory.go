package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const memoryToolName = "memory"

// SessionStore holds per-session key/value state. It is passed explicitly to
// each tool instance; nothing here is process-global.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]string
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]map[string]string)}
}

func (s *SessionStore) set(session, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[session]
	if !ok {
		m = make(map[string]string)
		s.sessions[session] = m
	}
	m[key] = value
}

func (s *SessionStore) get(session, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.sessions[session][key]
	return value, ok
}

func (s *SessionStore) delete(session, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[session]
	if !ok {
		return false
	}
	if _, present := m[key]; !present {
		return false
	}
	delete(m, key)
	return true
}

func (s *SessionStore) keys(session string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sessions[session]))
	for key := range s.sessions[session] {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// MemoryTool lets an agent remember values across turns within one session.
type MemoryTool struct {
	store   *SessionStore
	session string
}

// NewMemoryTool binds the memory tool to one session of a store.
func NewMemoryTool(store *SessionStore, session string) MemoryTool {
	return MemoryTool{store: store, session: session}
}

func (MemoryTool) Name() string { return memoryToolName }

func (MemoryTool) Description() string {
	return "Store and recall values for this session. Actions: set, get, delete, list."
}

type memoryParams struct {
	Action string `json:"action" jsonschema:"enum=set,enum=get,enum=delete,enum=list"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

var memorySchema = mustSchema(memoryToolName, memoryParams{})

func (MemoryTool) Schema() json.RawMessage { return memorySchema }

func (m MemoryTool) Execute(ctx context.Context, params json.RawMessage) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	var input memoryParams
	if err := decodeParams(params, &input); err != nil {
		return Result{}, fmt.Errorf("decode memory params: %w", err)
	}

	key := strings.TrimSpace(input.Key)
	switch input.Action {
	case "set":
		if key == "" {
			return Result{}, errors.New("key is required")
		}
		m.store.set(m.session, key, input.Value)
		return Result{Content: fmt.Sprintf("stored %q", key)}, nil
	case "get":
		if key == "" {
			return Result{}, errors.New("key is required")
		}
		value, ok := m.store.get(m.session, key)
		if !ok {
			return Result{Content: fmt.Sprintf("no value stored for %q", key)}, nil
		}
		return Result{Content: value}, nil
	case "delete":
		if key == "" {
			return Result{}, errors.New("key is required")
		}
		if m.store.delete(m.session, key) {
			return Result{Content: fmt.Sprintf("deleted %q", key)}, nil
		}
		return Result{Content: fmt.Sprintf("no value stored for %q", key)}, nil
	case "list":
		names := m.store.keys(m.session)
		if len(names) == 0 {
			return Result{Content: "no stored keys"}, nil
		}
		details, _ := json.Marshal(names)
		return Result{Content: strings.Join(names, ", "), Data: details}, nil
	default:
		return Result{}, fmt.Errorf("unknown action %q", input.Action)
	}
}
