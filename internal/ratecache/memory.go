package ratecache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goldline/ratedesk/pkg/model"
)

// Memory is an in-process Cache. Each base holds an immutable Entry behind an
// atomic pointer, so readers never wait on writers.
type Memory struct {
	ttl     time.Duration
	now     func() time.Time
	entries sync.Map // model.CurrencyCode -> *atomic.Pointer[Entry]
}

// NewMemory creates an in-memory cache with the given freshness window.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) slot(base model.CurrencyCode) *atomic.Pointer[Entry] {
	if p, ok := m.entries.Load(base); ok {
		return p.(*atomic.Pointer[Entry])
	}
	p, _ := m.entries.LoadOrStore(base, new(atomic.Pointer[Entry]))
	return p.(*atomic.Pointer[Entry])
}

// Lookup returns the raw entry for base.
func (m *Memory) Lookup(_ context.Context, base model.CurrencyCode) (Entry, error) {
	p, ok := m.entries.Load(base)
	if !ok {
		return Entry{}, ErrNotFound
	}
	e := p.(*atomic.Pointer[Entry]).Load()
	if e == nil {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// Get implements Cache.
func (m *Memory) Get(ctx context.Context, base model.CurrencyCode) (model.RateSnapshot, bool, error) {
	e, err := m.Lookup(ctx, base)
	if err != nil {
		return model.RateSnapshot{}, false, err
	}
	return e.Snapshot, e.Fresh(m.now()), nil
}

// Put implements Cache.
func (m *Memory) Put(_ context.Context, base model.CurrencyCode, snap model.RateSnapshot) error {
	m.Restore(Entry{Base: base, Snapshot: snap, FetchedAt: m.now(), TTL: m.ttl})
	return nil
}

// Restore installs an entry with its original timestamp (e.g. loaded from Redis).
func (m *Memory) Restore(e Entry) {
	if e.TTL == 0 {
		e.TTL = m.ttl
	}
	m.slot(e.Base).Store(&e)
}

// Invalidate implements Cache.
func (m *Memory) Invalidate(_ context.Context, base model.CurrencyCode) error {
	m.entries.Delete(base)
	return nil
}

// Bases lists every base with a cached entry.
func (m *Memory) Bases() []model.CurrencyCode {
	var out []model.CurrencyCode
	m.entries.Range(func(k, v any) bool {
		if v.(*atomic.Pointer[Entry]).Load() != nil {
			out = append(out, k.(model.CurrencyCode))
		}
		return true
	})
	return out
}
