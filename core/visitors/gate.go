package visitors

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GateKeyPrefix prefixes every per-fingerprint day key.
const GateKeyPrefix = "visitor_tracked_"

// DayStore persists the last tracked day per fingerprint key.
type DayStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Pruner is implemented by day stores that need periodic cleanup.
// Prune drops every key whose stored day differs from keep.
type Pruner interface {
	Prune(ctx context.Context, keep string) (int, error)
}

// Gate decides whether a fingerprint was already tracked on the current day.
type Gate struct {
	store DayStore
	loc   *time.Location
	now   func() time.Time
}

// NewGate creates a gate over store using loc for calendar days.
func NewGate(store DayStore, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.Local
	}
	return &Gate{store: store, loc: loc, now: time.Now}
}

// WithClock replaces the gate's clock.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Store returns the underlying day store.
func (g *Gate) Store() DayStore {
	return g.store
}

// Today returns the current day key.
func (g *Gate) Today() string {
	return DayKey(g.now(), g.loc)
}

// AlreadyTracked reports whether fingerprint was tracked today and marks it
// as tracked otherwise. The read and the write are not atomic: concurrent
// callers may both observe false.
func (g *Gate) AlreadyTracked(ctx context.Context, fingerprint string) (bool, error) {
	key := GateKeyPrefix + fingerprint
	today := g.Today()

	stored, found, err := g.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read gate %s: %w", key, err)
	}
	if found && stored == today {
		return true, nil
	}

	if err := g.store.Set(ctx, key, today); err != nil {
		return false, fmt.Errorf("write gate %s: %w", key, err)
	}
	return false, nil
}

// MemoryDayStore keeps gate keys in process memory.
type MemoryDayStore struct {
	mu   sync.RWMutex
	days map[string]string
}

// NewMemoryDayStore creates an empty in-memory store.
func NewMemoryDayStore() *MemoryDayStore {
	return &MemoryDayStore{days: make(map[string]string)}
}

func (m *MemoryDayStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.days[key]
	return v, ok, nil
}

func (m *MemoryDayStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.days[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryDayStore) Prune(_ context.Context, keep string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, v := range m.days {
		if v != keep {
			delete(m.days, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored keys.
func (m *MemoryDayStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.days)
}
