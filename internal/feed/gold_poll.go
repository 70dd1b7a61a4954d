package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/httpclient"
	"github.com/goldline/ratedesk/pkg/model"
)

// TickSink consumes gold ticks; *gold.Tracker satisfies it.
// A nil tick means the source is unavailable.
type TickSink interface {
	Update(raw *model.RawGoldTick) model.GoldQuote
}

// GoldPoller pulls gold ticks on an interval and feeds them to a TickSink.
type GoldPoller struct {
	logger   *zap.Logger
	exec     Doer
	url      string
	sink     TickSink
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewGoldPoller constructs a poller for the gold quote endpoint at url.
func NewGoldPoller(logger *zap.Logger, exec Doer, url string, sink TickSink, interval time.Duration) *GoldPoller {
	return &GoldPoller{
		logger:   logger,
		exec:     exec,
		url:      url,
		sink:     sink,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// PollOnce fetches one tick and applies it. On failure the sink receives a
// nil tick so the quote is flagged ERROR while keeping last-known values.
func (p *GoldPoller) PollOnce(ctx context.Context) (model.GoldQuote, error) {
	var tick model.RawGoldTick
	err := p.exec.DoJSON(ctx, httpclient.Request{Method: http.MethodGet, URL: p.url}, &tick)
	if err != nil {
		q := p.sink.Update(nil)
		return q, fmt.Errorf("poll gold: %w", err)
	}
	return p.sink.Update(&tick), nil
}

// Start polls immediately and then on every interval until ctx ends or Stop is called.
func (p *GoldPoller) Start(ctx context.Context) {
	p.logger.Info("feed.gold_poller_started", zap.Duration("interval", p.interval))

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				p.logger.Info("feed.gold_poller_stopped", zap.String("reason", "context_done"))
				return
			case <-p.stopCh:
				p.logger.Info("feed.gold_poller_stopped", zap.String("reason", "poller_shutdown"))
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

func (p *GoldPoller) poll(ctx context.Context) {
	q, err := p.PollOnce(ctx)
	if err != nil {
		p.logger.Warn("feed.gold_poll_error", zap.Error(err))
		return
	}
	p.logger.Debug("feed.gold_tick",
		zap.Float64("bid", q.Bid),
		zap.String("status", string(q.MarketStatus)))
}

// Stop signals the poller to stop gracefully.
func (p *GoldPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}
