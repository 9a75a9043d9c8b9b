package visitors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Order is the visited_at sort direction of a query.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

// Query selects visit rows. A zero Since means no lower bound and a zero
// Limit means no limit.
type Query struct {
	Since time.Time
	Order Order
	Limit int
}

// Backend is the durable, append-only visit store.
type Backend interface {
	Insert(ctx context.Context, record VisitRecord) error
	Query(ctx context.Context, q Query) ([]VisitRecord, error)
}

// Provider yields the backend once it is ready for use.
type Provider func(ctx context.Context) (Backend, error)

// StaticProvider always yields b.
func StaticProvider(b Backend) Provider {
	return func(context.Context) (Backend, error) {
		return b, nil
	}
}

const (
	DefaultReadyTimeout  = 5 * time.Second
	DefaultReadyInterval = 100 * time.Millisecond
)

// WaitReady polls provider until it yields a backend. It gives up with
// ErrBackendUnavailable once timeout elapses.
func WaitReady(ctx context.Context, provider Provider, timeout, interval time.Duration) (Backend, error) {
	if provider == nil {
		return nil, ErrBackendUnavailable
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	if interval <= 0 {
		interval = DefaultReadyInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		b, err := provider(ctx)
		if err == nil && b != nil {
			return b, nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, lastErr)
			}
			return nil, ErrBackendUnavailable
		case <-ticker.C:
		}
	}
}

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	records []VisitRecord
	failErr error
}

// NewMemoryBackend creates a backend seeded with records.
func NewMemoryBackend(records ...VisitRecord) *MemoryBackend {
	return &MemoryBackend{records: append([]VisitRecord(nil), records...)}
}

// FailWith makes every subsequent call return err (nil restores normal operation).
func (m *MemoryBackend) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *MemoryBackend) Insert(_ context.Context, record VisitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *MemoryBackend) Query(_ context.Context, q Query) ([]VisitRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return nil, m.failErr
	}

	out := make([]VisitRecord, 0, len(m.records))
	for _, r := range m.records {
		if !q.Since.IsZero() && r.VisitedAt.Before(q.Since) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.Order == OrderDesc {
			return out[i].VisitedAt.After(out[j].VisitedAt)
		}
		return out[i].VisitedAt.Before(out[j].VisitedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

var errNotReady = errors.New("not ready")

// GatedProvider yields b only after ready reports true.
func GatedProvider(b Backend, ready func() bool) Provider {
	return func(context.Context) (Backend, error) {
		if ready != nil && !ready() {
			return nil, errNotReady
		}
		return b, nil
	}
}
