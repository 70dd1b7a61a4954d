package ratecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goldline/ratedesk/internal/store"
	"github.com/goldline/ratedesk/pkg/model"
)

// persisted is the stored value shape: {"data": snapshot, "timestamp": ...}.
type persisted struct {
	Data      model.RateSnapshot `json:"data"`
	Timestamp time.Time          `json:"timestamp"`
}

// Redis persists snapshots through a store.KV under "<namespace>_<BASE>".
type Redis struct {
	kv        store.KV
	namespace string
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewRedis creates a KV-backed cache. retention bounds key lifetime in the
// KV (0 keeps keys until overwritten or invalidated).
func NewRedis(kv store.KV, namespace string, ttl, retention time.Duration) *Redis {
	return &Redis{kv: kv, namespace: namespace, ttl: ttl, retention: retention, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (r *Redis) WithClock(now func() time.Time) *Redis {
	r.now = now
	return r
}

// Key renders the persisted key for base.
func (r *Redis) Key(base model.CurrencyCode) string {
	return r.namespace + "_" + base.String()
}

// Lookup returns the raw entry for base.
func (r *Redis) Lookup(ctx context.Context, base model.CurrencyCode) (Entry, error) {
	var p persisted
	if err := r.kv.GetJSON(ctx, r.Key(base), &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("ratecache: read %s: %w", base, err)
	}
	return Entry{Base: base, Snapshot: p.Data, FetchedAt: p.Timestamp, TTL: r.ttl}, nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, base model.CurrencyCode) (model.RateSnapshot, bool, error) {
	e, err := r.Lookup(ctx, base)
	if err != nil {
		return model.RateSnapshot{}, false, err
	}
	return e.Snapshot, e.Fresh(r.now()), nil
}

// Put implements Cache.
func (r *Redis) Put(ctx context.Context, base model.CurrencyCode, snap model.RateSnapshot) error {
	return r.put(ctx, base, snap, r.now())
}

func (r *Redis) put(ctx context.Context, base model.CurrencyCode, snap model.RateSnapshot, at time.Time) error {
	if err := r.kv.SetJSON(ctx, r.Key(base), persisted{Data: snap, Timestamp: at.UTC()}, r.retention); err != nil {
		return fmt.Errorf("ratecache: write %s: %w", base, err)
	}
	return nil
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context, base model.CurrencyCode) error {
	if err := r.kv.Delete(ctx, r.Key(base)); err != nil {
		return fmt.Errorf("ratecache: delete %s: %w", base, err)
	}
	return nil
}
