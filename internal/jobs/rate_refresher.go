package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goldline/ratedesk/pkg/model"
)

// maxConcurrentBases bounds the fetches one cycle runs at once.
const maxConcurrentBases = 4

// BaseRefresher is satisfied by *desk.Refresher.
type BaseRefresher interface {
	Bases() []model.CurrencyCode
	Refresh(ctx context.Context, base model.CurrencyCode) (model.RateSnapshot, error)
}

// RateRefresher refreshes every tracked base on a fixed interval,
// regardless of cache freshness.
type RateRefresher struct {
	logger    *zap.Logger
	refresher BaseRefresher
	interval  time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewRateRefresher constructs the periodic refresh job.
func NewRateRefresher(logger *zap.Logger, refresher BaseRefresher, interval time.Duration) *RateRefresher {
	return &RateRefresher{
		logger:    logger,
		refresher: refresher,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start runs one cycle immediately, then one per interval, until Stop or
// ctx cancellation.
func (r *RateRefresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("rate_refresher.started", zap.Duration("interval", r.interval))
	r.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("rate_refresher.stopped", zap.String("reason", "manual stop"))
			return
		case <-ctx.Done():
			r.logger.Info("rate_refresher.stopped", zap.String("reason", "context canceled"))
			return
		}
	}
}

// Stop gracefully halts the refresher.
func (r *RateRefresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// RunOnce refreshes every tracked base. Failures are logged per base and
// never abort the cycle.
func (r *RateRefresher) RunOnce(ctx context.Context) int {
	start := time.Now()
	bases := r.refresher.Bases()

	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBases)
	for _, base := range bases {
		g.Go(func() error {
			if _, err := r.refresher.Refresh(gctx, base); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				r.logger.Warn("rate_refresher.base_failed", zap.String("base", base.String()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("rate_refresher.cycle_complete",
		zap.Int("bases", len(bases)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return len(bases) - failed
}
