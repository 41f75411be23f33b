package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMemoryMaxSize = 1000

// Memory is an in-process LRU cache. When MaxSize is exceeded the least
// recently used entry is evicted.
type Memory struct {
	counters

	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	items   map[string]*list.Element
	now     func() time.Time
}

type memoryItem struct {
	key   string
	entry entry
}

// NewMemory builds an LRU cache bounded to maxSize entries (0 uses the default).
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = defaultMemoryMaxSize
	}
	return &Memory{
		maxSize: maxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.miss()
		return nil, false
	}
	item := elem.Value.(*memoryItem)
	if item.entry.expired(m.now()) {
		m.removeLocked(elem)
		m.miss()
		return nil, false
	}

	m.order.MoveToFront(elem)
	m.hit()
	return append([]byte(nil), item.entry.Data...), true
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		elem.Value.(*memoryItem).entry = newEntry(value, ttl, m.now())
		m.order.MoveToFront(elem)
		return
	}

	elem := m.order.PushFront(&memoryItem{key: key, entry: newEntry(value, ttl, m.now())})
	m.items[key] = elem

	for m.order.Len() > m.maxSize {
		if oldest := m.order.Back(); oldest != nil {
			m.removeLocked(oldest)
		}
	}
}

// Has implements Cache.
func (m *Memory) Has(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return false
	}
	if elem.Value.(*memoryItem).entry.expired(m.now()) {
		m.removeLocked(elem)
		return false
	}
	return true
}

// Delete implements Cache.
func (m *Memory) Delete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeLocked(elem)
	return true
}

// Clear implements Cache.
func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.items = make(map[string]*list.Element)
}

// Cleanup implements Cache.
func (m *Memory) Cleanup(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for elem := m.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*memoryItem).entry.expired(now) {
			m.removeLocked(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Stats implements Cache.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	size := m.order.Len()
	m.mu.Unlock()
	return m.snapshot(size)
}

// Len implements Cache.
func (m *Memory) Len(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *Memory) removeLocked(elem *list.Element) {
	item := elem.Value.(*memoryItem)
	m.order.Remove(elem)
	delete(m.items, item.key)
}
