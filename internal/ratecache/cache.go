// Package ratecache stores the latest RateSnapshot per base currency.
//
// Entries are never evicted because they went stale: a stale snapshot is
// served until a newer one supersedes it.
package ratecache

import (
	"context"
	"errors"
	"time"

	"github.com/goldline/ratedesk/pkg/model"
)

// ErrNotFound is returned by Get when no snapshot exists for the base.
var ErrNotFound = errors.New("ratecache: no entry for base")

// Cache is the contract the refresher and API read and write through.
type Cache interface {
	// Get returns the snapshot and whether it is still fresh.
	Get(ctx context.Context, base model.CurrencyCode) (model.RateSnapshot, bool, error)
	Put(ctx context.Context, base model.CurrencyCode, snap model.RateSnapshot) error
	Invalidate(ctx context.Context, base model.CurrencyCode) error
}

// Entry is one cached snapshot with the time it was stored.
type Entry struct {
	Base      model.CurrencyCode
	Snapshot  model.RateSnapshot
	FetchedAt time.Time
	TTL       time.Duration
}

// Fresh reports now − FetchedAt < TTL.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// Age is how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}
