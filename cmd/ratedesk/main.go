package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/goldline/ratedesk/internal/api"
	"github.com/goldline/ratedesk/internal/audit"
	"github.com/goldline/ratedesk/internal/derive"
	"github.com/goldline/ratedesk/internal/desk"
	"github.com/goldline/ratedesk/internal/feed"
	"github.com/goldline/ratedesk/internal/gold"
	"github.com/goldline/ratedesk/internal/httpclient"
	"github.com/goldline/ratedesk/internal/jobs"
	"github.com/goldline/ratedesk/internal/ledger"
	"github.com/goldline/ratedesk/internal/metrics"
	"github.com/goldline/ratedesk/internal/party"
	"github.com/goldline/ratedesk/internal/publisher"
	"github.com/goldline/ratedesk/internal/rate"
	"github.com/goldline/ratedesk/internal/ratecache"
	"github.com/goldline/ratedesk/internal/retry"
	internalsecrets "github.com/goldline/ratedesk/internal/secrets"
	"github.com/goldline/ratedesk/internal/store"
	"github.com/goldline/ratedesk/internal/voucher"
	"github.com/goldline/ratedesk/internal/watchlist"
	"github.com/goldline/ratedesk/pkg/cache"
	"github.com/goldline/ratedesk/pkg/config"
	"github.com/goldline/ratedesk/pkg/eventbus"
	"github.com/goldline/ratedesk/pkg/logger"
	"github.com/goldline/ratedesk/pkg/model"
	"github.com/goldline/ratedesk/pkg/secrets"
	"github.com/goldline/ratedesk/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	if err := run(ctx, cfg, nil); err != nil {
		logger.S().Fatalw("ratedesk.exited", "error", err)
	}
}

// run wires the desk and serves HTTP until ctx is done. ready, when set,
// receives the bound listen address once the server accepts connections.
func run(ctx context.Context, cfg *config.Config, ready func(addr string)) error {
	logg := logger.S()
	logg.Infof("starting [%s]...", cfg.ServiceName)

	defaultBase, err := model.ParseCurrency(cfg.DefaultBase)
	if err != nil {
		return fmt.Errorf("invalid DEFAULT_BASE: %w", err)
	}
	supported, err := model.ParseCurrencies(cfg.SupportedCurrencies)
	if err != nil {
		return fmt.Errorf("invalid SUPPORTED_CURRENCIES: %w", err)
	}

	// --- Store (Redis + optional Postgres) ---
	var st *store.HybridStore
	if cfg.RedisAddr != "" {
		logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		st, err = store.NewHybrid(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPass,
		}, cfg.DatabaseURL, store.PGPoolConfig{
			MaxConns:          int32(cfg.PGMaxConns),
			MinConns:          int32(cfg.PGMinConns),
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, logger.Named("store"))
		if err != nil {
			return fmt.Errorf("failed to init store: %w", err)
		}
	}

	// --- Rate cache (memory front, Redis back) ---
	memCache := ratecache.NewMemory(cfg.CacheTTL)
	var rateCache ratecache.Cache = memCache
	if st != nil {
		rateCache = ratecache.NewTiered(
			memCache,
			ratecache.NewRedis(st, cfg.CacheNamespace, cfg.CacheTTL, cfg.CacheRetention),
			logger.Named("ratecache"),
		)
	}

	// --- Feed credentials (AWS Secrets Manager, env fallback) ---
	var provider secrets.Provider
	if cfg.FeedSecretName != "" {
		provider, err = secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return fmt.Errorf("failed to create AWS Secrets Manager provider: %w", err)
		}
	}
	credCache := cache.NewTTL[feed.Credentials](cfg.CacheTTL)
	partyCache := cache.NewTTL[model.PartySpreadConfig](cfg.PartyCacheTTL)
	stopCleaner := make(chan struct{})
	go credCache.StartCleaner(cfg.CacheCleanupFreq, stopCleaner)
	go partyCache.StartCleaner(cfg.CacheCleanupFreq, stopCleaner)

	resolver := internalsecrets.NewFeedResolver(
		logger.Named("secrets"),
		cfg.Env,
		provider,
		credCache,
		map[string]feed.Credentials{
			feed.FeedPivots: {APIKey: cfg.FeedAPIKey, BaseURL: cfg.RateFeedURL},
			feed.FeedGold:   {APIKey: cfg.FeedAPIKey, BaseURL: cfg.GoldFeedWSURL},
		},
	)

	// --- Rate limiter + upstream executors ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.FeedRatePerSecond,
		Burst:             cfg.FeedBurst,
		Cooldown:          1 * time.Second,
	})
	httpClient := &http.Client{}
	feedPolicy := retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   cfg.RetryDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Timeout:     cfg.FetchTimeout,
	}
	newExec := func(source string, policy retry.Policy) *httpclient.Executor {
		return httpclient.New(logger.Named(source), rateMgr, httpClient, policy, source).
			WithObserver(metrics.FeedObserver{})
	}
	pivotExec := newExec(feed.FeedPivots, feedPolicy)
	goldExec := newExec(feed.FeedGold, feedPolicy)
	tradeExec := newExec("trade_api", retry.Policy{MaxAttempts: 1, Timeout: cfg.FetchTimeout})
	partyExec := newExec("party_api", feedPolicy)

	// --- Feeds ---
	pivots := feed.NewPivotClient(logger.Named("feed"), pivotExec, resolver)
	tracker := gold.NewTracker(logger.Named("gold"))

	var refresherOpts []desk.Option
	var goldPoller *feed.GoldPoller
	switch {
	case cfg.GoldFeedWSURL != "":
		creds, err := resolver.Resolve(ctx, feed.FeedGold)
		if err != nil {
			return fmt.Errorf("failed to resolve gold feed credentials: %w", err)
		}
		stream := feed.NewGoldStream(creds.BaseURL, creds, tracker, logger.Named("feed"))
		go stream.Run(ctx)
	case cfg.GoldFeedPollURL != "":
		goldPoller = feed.NewGoldPoller(logger.Named("feed"), goldExec, cfg.GoldFeedPollURL, tracker, cfg.GoldPollInterval)
		goldPoller.Start(ctx)
		refresherOpts = append(refresherOpts, desk.WithGoldPoller(goldPoller))
	default:
		logg.Warn("no gold feed configured; XAU stays unsupported until a quote arrives")
	}

	// --- Derivation engine ---
	engine := derive.NewEngine(
		logger.Named("derive"),
		derive.WithFallbackPivots(cfg.FallbackPivots),
		derive.WithUnsupportedHook(metrics.IncUnsupported),
	)

	// --- Event bus + sinks ---
	bus := eventbus.New()
	refresherOpts = append(refresherOpts, desk.WithEventBus(bus))

	var pub *publisher.Publisher
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		pub, err = publisher.New(nc, cfg.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to init publisher: %w", err)
		}
		pub.Attach(bus)
	}

	var vouchers *voucher.Publisher
	if cfg.RabbitMQURL != "" {
		vouchers, err = voucher.NewPublisher(cfg.RabbitMQURL, bus, logger.Named("voucher"))
		if err != nil {
			return fmt.Errorf("failed to init voucher publisher: %w", err)
		}
	}

	if st != nil && st.PG != nil {
		audit.NewTradeWriter(st.PG, logger.Named("audit"), cfg.ServiceName).Attach(bus)
	}

	// --- Ledger ---
	trades := ledger.New(
		logger.Named("ledger"),
		ledger.NewRESTStore(tradeExec, cfg.TradeAPIURL),
		bus,
		ledger.WithObserver(metrics.ObserveTrade),
	)
	if err := trades.Sync(ctx); err != nil {
		logg.Warnw("initial ledger sync failed", "error", err)
	}

	// --- Desk ---
	refresher := desk.NewRefresher(logger.Named("desk"), pivots, tracker, engine, rateCache, supported, refresherOpts...)
	refresher.Track(defaultBase)

	parties := party.NewSource(logger.Named("party"), partyExec, cfg.PartyAPIURL, partyCache)
	deskSvc := desk.NewService(
		logger.Named("desk"),
		refresher,
		tracker,
		parties,
		watchlist.NewRegistry(defaultBase),
		trades,
		supported,
	)

	rateJob := jobs.NewRateRefresher(logger.Named("jobs"), refresher, cfg.RefreshInterval)
	go rateJob.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	checks := map[string]api.HealthCheck{}
	if st != nil {
		checks["store"] = st.HealthCheck
	}
	if pub != nil {
		checks["nats"] = func(context.Context) error { return pub.HealthCheck() }
	}
	api.RegisterRoutes(app, api.NewDeskHandler(logger.Named("api"), deskSvc, defaultBase), checks)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on :%d: %w", cfg.Port, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logg.Infof("HTTP API listening on %s", ln.Addr())
		serveErr <- app.Listener(ln)
	}()
	if ready != nil {
		ready(ln.Addr().String())
	}

	// --- Main process stays alive until interrupted ---
	logg.Infow("["+cfg.ServiceName+"] running",
		"env", cfg.Env,
		"default_base", defaultBase,
		"supported", supported,
		"refresh_interval", cfg.RefreshInterval,
		"nats", utils.MaskURL(cfg.NATSURL),
		"rabbitmq", utils.MaskURL(cfg.RabbitMQURL),
		"redis", cfg.RedisAddr)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("fiber.listen_failed: %w", err)
	}
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	close(stopCleaner)
	rateJob.Stop()
	if goldPoller != nil {
		goldPoller.Stop()
	}
	refresher.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if vouchers != nil {
		if err := vouchers.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if st != nil {
		if err := st.Close(); err != nil {
			logg.Warnw("store.close_failed", "error", err)
		}
	}
	return runErr
}
