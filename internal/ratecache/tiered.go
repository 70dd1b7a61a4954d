package ratecache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/goldline/ratedesk/pkg/model"
)

// Tiered serves reads from memory and persists writes to Redis, so a restart
// comes back with the last snapshots (and their original timestamps).
type Tiered struct {
	mem    *Memory
	remote *Redis
	logger *zap.Logger
}

// NewTiered combines a memory front with a persistent back.
func NewTiered(mem *Memory, remote *Redis, logger *zap.Logger) *Tiered {
	return &Tiered{mem: mem, remote: remote, logger: logger}
}

// Get implements Cache. A memory miss falls through to Redis and warms memory.
// Redis failures other than a missing key are returned to the caller.
func (t *Tiered) Get(ctx context.Context, base model.CurrencyCode) (model.RateSnapshot, bool, error) {
	if snap, fresh, err := t.mem.Get(ctx, base); err == nil {
		return snap, fresh, nil
	}

	e, err := t.remote.Lookup(ctx, base)
	if errors.Is(err, ErrNotFound) {
		return model.RateSnapshot{}, false, ErrNotFound
	}
	if err != nil {
		t.logger.Warn("ratecache.remote_read_failed", zap.String("base", base.String()), zap.Error(err))
		return model.RateSnapshot{}, false, fmt.Errorf("read %s from redis: %w", base, err)
	}
	t.mem.Restore(e)
	t.logger.Debug("ratecache.warmed_from_remote", zap.String("base", base.String()))
	return e.Snapshot, e.Fresh(t.mem.now()), nil
}

// Put implements Cache. Memory is authoritative; a Redis failure is logged.
func (t *Tiered) Put(ctx context.Context, base model.CurrencyCode, snap model.RateSnapshot) error {
	at := t.mem.now()
	t.mem.Restore(Entry{Base: base, Snapshot: snap, FetchedAt: at})
	if err := t.remote.put(ctx, base, snap, at); err != nil {
		t.logger.Warn("ratecache.remote_write_failed", zap.String("base", base.String()), zap.Error(err))
	}
	return nil
}

// Invalidate implements Cache.
func (t *Tiered) Invalidate(ctx context.Context, base model.CurrencyCode) error {
	_ = t.mem.Invalidate(ctx, base)
	return t.remote.Invalidate(ctx, base)
}
