package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bingo/internal/clock"
)

type memoryEntry struct {
	value   any
	expires time.Time
}

// MemoryStore is an in-process SessionStore with the same key layout and
// expiry behaviour as RedisStore. It backs single-node development and
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	clk     clock.Clock
	ttl     time.Duration
	items   map[string]*memoryEntry
	waiting map[string]struct{}
}

func NewMemoryStore(clk clock.Clock, ttl time.Duration) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{clk: clk, ttl: ttl, items: make(map[string]*memoryEntry), waiting: make(map[string]struct{})}
}

// lookup returns the live entry for key, dropping it if expired. Caller
// holds mu.
func (m *MemoryStore) lookup(key string) (*memoryEntry, bool) {
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !m.clk.Now().Before(e.expires) {
		delete(m.items, key)
		return nil, false
	}
	return e, true
}

func (m *MemoryStore) touch(key string, ttl time.Duration) {
	if e, ok := m.lookup(key); ok {
		e.expires = m.clk.Now().Add(ttl)
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) GetSession(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(sessionKey(id))
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(e.value.([]byte)), nil
}

func (m *MemoryStore) PutSession(_ context.Context, id string, blob []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[sessionKey(id)] = &memoryEntry{value: cloneBytes(blob), expires: m.clk.Now().Add(ttl)}
	m.touch(playersKey(id), ttl)
	m.touch(calledKey(id), ttl)
	for _, playerID := range m.members(id) {
		m.touch(cardKey(id, playerID), ttl)
	}
	return nil
}

// members returns the live member set of id. Caller holds mu.
func (m *MemoryStore) members(id string) []string {
	e, ok := m.lookup(playersKey(id))
	if !ok {
		return nil
	}
	set := e.value.(map[string]struct{})
	players := make([]string, 0, len(set))
	for p := range set {
		players = append(players, p)
	}
	sort.Strings(players)
	return players
}

func (m *MemoryStore) AddPlayer(_ context.Context, id, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := playersKey(id)
	e, ok := m.lookup(key)
	if !ok {
		e = &memoryEntry{value: map[string]struct{}{}}
		m.items[key] = e
	}
	e.value.(map[string]struct{})[playerID] = struct{}{}
	e.expires = m.clk.Now().Add(m.ttl)
	return nil
}

func (m *MemoryStore) RemovePlayer(_ context.Context, id, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.lookup(playersKey(id)); ok {
		delete(e.value.(map[string]struct{}), playerID)
	}
	return nil
}

func (m *MemoryStore) ListPlayers(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	players := m.members(id)
	if players == nil {
		return []string{}, nil
	}
	return players, nil
}

func (m *MemoryStore) AppendCalledNumber(_ context.Context, id string, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := calledKey(id)
	e, ok := m.lookup(key)
	if !ok {
		e = &memoryEntry{value: []int{}}
		m.items[key] = e
	}
	e.value = append(e.value.([]int), number)
	e.expires = m.clk.Now().Add(m.ttl)
	return nil
}

func (m *MemoryStore) ListCalledNumbers(_ context.Context, id string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(calledKey(id))
	if !ok {
		return []int{}, nil
	}
	called := e.value.([]int)
	out := make([]int, len(called))
	copy(out, called)
	return out, nil
}

func (m *MemoryStore) GetCard(_ context.Context, id, playerID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(cardKey(id, playerID))
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(e.value.([]byte)), nil
}

func (m *MemoryStore) PutCard(_ context.Context, id, playerID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[cardKey(id, playerID)] = &memoryEntry{value: cloneBytes(blob), expires: m.clk.Now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) DeleteCard(_ context.Context, id, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, cardKey(id, playerID))
	return nil
}

func (m *MemoryStore) AddWaiting(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waiting[id] = struct{}{}
	return nil
}

func (m *MemoryStore) RemoveWaiting(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.waiting, id)
	return nil
}

func (m *MemoryStore) ListWaiting(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.waiting))
	for id := range m.waiting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Purge deletes the session's keys and its waiting index entry. Card keys
// are derived from the member set.
func (m *MemoryStore) Purge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, playerID := range m.members(id) {
		delete(m.items, cardKey(id, playerID))
	}
	delete(m.items, sessionKey(id))
	delete(m.items, playersKey(id))
	delete(m.items, calledKey(id))
	delete(m.waiting, id)
	return nil
}

// Len reports how many live keys the store holds.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.items {
		if _, ok := m.lookup(key); ok {
			n++
		}
	}
	return n
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
