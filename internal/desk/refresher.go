// Package desk orchestrates rate refreshes and exposes the desk operations
// (rates, prices, watchlists, trades) the API and CLI are built on.
package desk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goldline/ratedesk/internal/derive"
	"github.com/goldline/ratedesk/internal/metrics"
	"github.com/goldline/ratedesk/internal/ratecache"
	"github.com/goldline/ratedesk/pkg/eventbus"
	"github.com/goldline/ratedesk/pkg/model"
)

// NoticeCachedData accompanies snapshots served after a failed refresh.
const NoticeCachedData = "using cached data — API temporarily unavailable"

var (
	// ErrSuperseded is returned by Refresh when a newer refresh for the same
	// base has already been applied.
	ErrSuperseded = errors.New("desk: refresh superseded")
	// ErrClosed is returned once the refresher has been closed.
	ErrClosed = errors.New("desk: refresher closed")
)

// PivotFetcher is satisfied by *feed.PivotClient.
type PivotFetcher interface {
	Fetch(ctx context.Context) (model.PivotRateSet, error)
}

// GoldSource is satisfied by *gold.Tracker.
type GoldSource interface {
	Latest() model.GoldQuote
}

// GoldPoller is satisfied by *feed.GoldPoller.
type GoldPoller interface {
	PollOnce(ctx context.Context) (model.GoldQuote, error)
}

// RatesResult is a snapshot plus how it was obtained.
type RatesResult struct {
	Snapshot        model.RateSnapshot `json:"snapshot"`
	Fresh           bool               `json:"fresh"`
	UsingCachedData bool               `json:"usingCachedData"`
	Notice          string             `json:"notice,omitempty"`
}

type baseState struct {
	mu      sync.Mutex
	issued  uint64
	applied uint64
	cancel  context.CancelFunc
	lastErr error
}

// Refresher fetches pivots and gold, derives snapshots and writes them to the
// cache. At most one fetch per base is in flight; a newer one cancels the
// older, and only completions newer than the last applied one may write.
type Refresher struct {
	logger    *zap.Logger
	pivots    PivotFetcher
	gold      GoldSource
	goldPoll  GoldPoller
	engine    *derive.Engine
	cache     ratecache.Cache
	bus       *eventbus.EventBus
	supported []model.CurrencyCode
	now       func() time.Time

	root     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	bases  map[model.CurrencyCode]*baseState
	closed bool
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithGoldPoller polls gold alongside every pivot fetch instead of relying
// only on the pushed quote.
func WithGoldPoller(p GoldPoller) Option { return func(r *Refresher) { r.goldPoll = p } }

// WithEventBus publishes a SnapshotEvent for every applied snapshot.
func WithEventBus(bus *eventbus.EventBus) Option { return func(r *Refresher) { r.bus = bus } }

// WithClock overrides the time source used for freshness and event stamps.
func WithClock(now func() time.Time) Option { return func(r *Refresher) { r.now = now } }

// NewRefresher builds a refresher for the supported currencies.
func NewRefresher(
	logger *zap.Logger,
	pivots PivotFetcher,
	gold GoldSource,
	engine *derive.Engine,
	cache ratecache.Cache,
	supported []model.CurrencyCode,
	opts ...Option,
) *Refresher {
	root, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		logger:    logger,
		pivots:    pivots,
		gold:      gold,
		engine:    engine,
		cache:     cache,
		supported: supported,
		now:       time.Now,
		root:      root,
		shutdown:  cancel,
		bases:     make(map[model.CurrencyCode]*baseState),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Track registers bases for the periodic refresh without fetching them.
func (r *Refresher) Track(bases ...model.CurrencyCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range bases {
		r.stateLocked(b)
	}
}

// Bases returns every tracked base, sorted.
func (r *Refresher) Bases() []model.CurrencyCode {
	r.mu.Lock()
	out := make([]model.CurrencyCode, 0, len(r.bases))
	for b := range r.bases {
		out = append(out, b)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Refresher) stateLocked(base model.CurrencyCode) *baseState {
	st, ok := r.bases[base]
	if !ok {
		st = &baseState{}
		r.bases[base] = st
	}
	return st
}

func (r *Refresher) state(base model.CurrencyCode) (*baseState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	return r.stateLocked(base), nil
}

// Refresh fetches, derives and applies a snapshot for base, cancelling any
// refresh of the same base still in flight.
func (r *Refresher) Refresh(ctx context.Context, base model.CurrencyCode) (model.RateSnapshot, error) {
	st, err := r.state(base)
	if err != nil {
		return model.RateSnapshot{}, err
	}

	fctx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(r.root, cancel)
	defer stopOnClose()

	st.mu.Lock()
	if st.cancel != nil {
		st.cancel()
	}
	st.issued++
	seq := st.issued
	st.cancel = cancel
	st.mu.Unlock()

	defer func() {
		st.mu.Lock()
		if st.issued == seq {
			st.cancel = nil
		}
		st.mu.Unlock()
		cancel()
	}()

	snap, err := r.fetchAndDerive(fctx, base)
	if err != nil {
		st.mu.Lock()
		if seq > st.applied {
			st.lastErr = err
		}
		st.mu.Unlock()
		r.logger.Warn("desk.refresh_failed",
			zap.String("base", base.String()),
			zap.Uint64("seq", seq),
			zap.Error(err))
		metrics.IncError("desk", "refresh_failed")
		return model.RateSnapshot{}, err
	}

	return r.apply(ctx, fctx, st, base, seq, snap)
}

func (r *Refresher) fetchAndDerive(ctx context.Context, base model.CurrencyCode) (model.RateSnapshot, error) {
	var pivots model.PivotRateSet

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.pivots.Fetch(gctx)
		if err != nil {
			return fmt.Errorf("fetch pivots: %w", err)
		}
		pivots = p
		return nil
	})
	if r.goldPoll != nil {
		g.Go(func() error {
			// a failed poll leaves the tracker on its last good bid
			if _, err := r.goldPoll.PollOnce(gctx); err != nil {
				r.logger.Warn("desk.gold_poll_failed", zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.RateSnapshot{}, err
	}
	quote := r.gold.Latest()

	var prev *model.RateSnapshot
	if p, _, err := r.cache.Get(ctx, base); err == nil {
		prev = &p
	}
	return r.engine.Derive(base, &pivots, quote, r.supported, prev)
}

// apply writes snap unless a newer refresh already landed, the fetch was
// cancelled, or the refresher is closing.
func (r *Refresher) apply(ctx, fctx context.Context, st *baseState, base model.CurrencyCode, seq uint64, snap model.RateSnapshot) (model.RateSnapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if r.root.Err() != nil {
		return model.RateSnapshot{}, ErrClosed
	}
	if seq <= st.applied {
		r.logger.Info("desk.refresh_superseded",
			zap.String("base", base.String()),
			zap.Uint64("seq", seq),
			zap.Uint64("applied", st.applied))
		return snap, ErrSuperseded
	}
	if err := fctx.Err(); err != nil {
		return model.RateSnapshot{}, fmt.Errorf("refresh %s cancelled: %w", base, err)
	}
	if err := r.cache.Put(ctx, base, snap); err != nil {
		return model.RateSnapshot{}, fmt.Errorf("cache snapshot: %w", err)
	}
	st.applied = seq
	st.lastErr = nil

	if r.bus != nil {
		r.bus.Publish(model.SnapshotEvent{
			Base:      base,
			Sequence:  seq,
			Snapshot:  snap,
			AppliedAt: r.now().UTC(),
		})
	}
	r.logger.Info("desk.snapshot_applied",
		zap.String("base", base.String()),
		zap.Uint64("seq", seq),
		zap.Int("rates", len(snap.Rates)),
		zap.Bool("degraded", snap.Degraded))
	return snap, nil
}

// RefreshAsync starts a background refresh unless one is already running
// for base.
func (r *Refresher) RefreshAsync(base model.CurrencyCode) {
	st, err := r.state(base)
	if err != nil {
		return
	}
	st.mu.Lock()
	inFlight := st.cancel != nil
	st.mu.Unlock()
	if inFlight {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		_, _ = r.Refresh(r.root, base)
	}()
}

// Rates serves base from the cache: fresh entries as-is, stale ones
// immediately with a background refresh, misses by fetching synchronously.
// A failed fetch falls back to whatever the cache holds.
func (r *Refresher) Rates(ctx context.Context, base model.CurrencyCode) (RatesResult, error) {
	snap, fresh, err := r.cache.Get(ctx, base)
	switch {
	case err == nil && fresh:
		metrics.IncCacheLookup("fresh")
		r.observeAge(snap)
		r.Track(base)
		return RatesResult{Snapshot: snap, Fresh: true}, nil

	case err == nil:
		metrics.IncCacheLookup("stale")
		r.observeAge(snap)
		r.RefreshAsync(base)
		return r.cached(base, snap), nil

	case !errors.Is(err, ratecache.ErrNotFound):
		r.logger.Warn("desk.cache_read_failed", zap.String("base", base.String()), zap.Error(err))
	}

	metrics.IncCacheLookup("miss")
	return r.ForceRefresh(ctx, base)
}

// ForceRefresh refreshes base now. On failure it falls back to the cached
// entry, if any, labelled with NoticeCachedData.
func (r *Refresher) ForceRefresh(ctx context.Context, base model.CurrencyCode) (RatesResult, error) {
	snap, err := r.Refresh(ctx, base)
	if err == nil {
		return RatesResult{Snapshot: snap, Fresh: true}, nil
	}
	if errors.Is(err, ErrSuperseded) {
		if cur, fresh, cerr := r.cache.Get(ctx, base); cerr == nil {
			return RatesResult{Snapshot: cur, Fresh: fresh}, nil
		}
	}

	cur, _, cerr := r.cache.Get(ctx, base)
	if cerr != nil {
		return RatesResult{}, err
	}
	r.logger.Warn("desk.serving_cached", zap.String("base", base.String()), zap.Time("fetched_at", cur.FetchedAt))
	return RatesResult{Snapshot: cur, UsingCachedData: true, Notice: NoticeCachedData}, nil
}

// cached labels a stale snapshot. The notice is attached once a refresh for
// base has failed since the last successful one.
func (r *Refresher) cached(base model.CurrencyCode, snap model.RateSnapshot) RatesResult {
	res := RatesResult{Snapshot: snap, UsingCachedData: true}
	if st, err := r.state(base); err == nil {
		st.mu.Lock()
		if st.lastErr != nil {
			res.Notice = NoticeCachedData
		}
		st.mu.Unlock()
	}
	return res
}

func (r *Refresher) observeAge(snap model.RateSnapshot) {
	if !snap.FetchedAt.IsZero() {
		metrics.SetSnapshotAge(snap.Base, r.now().Sub(snap.FetchedAt))
	}
}

// Close cancels every outstanding fetch and waits for background refreshes.
func (r *Refresher) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.shutdown()
	r.wg.Wait()
	r.logger.Info("desk.refresher_closed")
}
