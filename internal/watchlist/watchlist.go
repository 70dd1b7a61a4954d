// Package watchlist keeps per-user sets of currencies to follow against a base.
package watchlist

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/goldline/ratedesk/pkg/model"
)

// ErrBaseCurrency is returned when adding the current base to the watchlist.
var ErrBaseCurrency = errors.New("watchlist: base currency cannot be watched")

// Item is one watched currency with its current rate.
type Item struct {
	Code model.CurrencyCode `json:"code"`
	Rate model.CurrencyRate `json:"rate"`
}

// Tracker is one user's watchlist. The base currency is never a member.
type Tracker struct {
	mu      sync.RWMutex
	base    model.CurrencyCode
	members map[model.CurrencyCode]struct{}
}

// NewTracker creates an empty watchlist against base.
func NewTracker(base model.CurrencyCode) *Tracker {
	return &Tracker{base: base, members: make(map[model.CurrencyCode]struct{})}
}

// Base returns the current base currency.
func (t *Tracker) Base() model.CurrencyCode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.base
}

// Add watches code. Adding an existing member is a no-op.
func (t *Tracker) Add(code model.CurrencyCode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if code == t.base {
		return ErrBaseCurrency
	}
	t.members[code] = struct{}{}
	return nil
}

// Remove stops watching code.
func (t *Tracker) Remove(code model.CurrencyCode) {
	t.mu.Lock()
	delete(t.members, code)
	t.mu.Unlock()
}

// SetBase switches the base and drops it from the members if present.
func (t *Tracker) SetBase(base model.CurrencyCode) {
	t.mu.Lock()
	t.base = base
	delete(t.members, base)
	t.mu.Unlock()
}

// Members returns the watched codes in alphabetical order.
func (t *Tracker) Members() []model.CurrencyCode {
	t.mu.RLock()
	out := make([]model.CurrencyCode, 0, len(t.members))
	for c := range t.members {
		out = append(out, c)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// List joins the members with snap, biggest movers first (|ChangePercent|
// descending, ties by code). Members missing from snap are left out.
func (t *Tracker) List(snap model.RateSnapshot) []Item {
	t.mu.RLock()
	base := t.base
	items := make([]Item, 0, len(t.members))
	for c := range t.members {
		if c == base || c == snap.Base {
			continue
		}
		if r, ok := snap.Rate(c); ok {
			items = append(items, Item{Code: c, Rate: r})
		}
	}
	t.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := math.Abs(items[i].Rate.ChangePercent), math.Abs(items[j].Rate.ChangePercent)
		if a != b {
			return a > b
		}
		return items[i].Code < items[j].Code
	})
	return items
}

// Registry holds one Tracker per user.
type Registry struct {
	mu          sync.Mutex
	defaultBase model.CurrencyCode
	trackers    map[string]*Tracker
}

// NewRegistry creates a registry whose new trackers start on defaultBase.
func NewRegistry(defaultBase model.CurrencyCode) *Registry {
	return &Registry{defaultBase: defaultBase, trackers: make(map[string]*Tracker)}
}

// For returns the user's tracker, creating it on first use.
func (r *Registry) For(user string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[user]
	if !ok {
		t = NewTracker(r.defaultBase)
		r.trackers[user] = t
	}
	return t
}

// Users returns the number of users with a tracker.
func (r *Registry) Users() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}
