package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goldline/ratedesk/internal/derive"
	"github.com/goldline/ratedesk/internal/feed"
	"github.com/goldline/ratedesk/internal/gold"
	"github.com/goldline/ratedesk/internal/httpclient"
	"github.com/goldline/ratedesk/internal/party"
	"github.com/goldline/ratedesk/internal/pricing"
	"github.com/goldline/ratedesk/internal/rate"
	"github.com/goldline/ratedesk/internal/retry"
	"github.com/goldline/ratedesk/pkg/cache"
	"github.com/goldline/ratedesk/pkg/config"
	"github.com/goldline/ratedesk/pkg/model"
)

// toolkit holds the collaborators shared by every subcommand.
type toolkit struct {
	cfg     *config.Config
	logger  *zap.Logger
	pivots  *feed.PivotClient
	gold    *gold.Tracker
	poller  *feed.GoldPoller
	engine  *derive.Engine
	parties *party.Source
}

func newToolkit(cfg *config.Config, logger *zap.Logger) *toolkit {
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.FeedRatePerSecond,
		Burst:             cfg.FeedBurst,
		Cooldown:          time.Second,
	})
	policy := retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   cfg.RetryDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Timeout:     cfg.FetchTimeout,
	}
	client := &http.Client{}
	exec := func(source string) *httpclient.Executor {
		return httpclient.New(logger, rateMgr, client, policy, source)
	}

	tk := &toolkit{
		cfg:    cfg,
		logger: logger,
		pivots: feed.NewPivotClient(logger, exec(feed.FeedPivots), feed.StaticCredentials{
			APIKey:  cfg.FeedAPIKey,
			BaseURL: cfg.RateFeedURL,
		}),
		gold:    gold.NewTracker(logger),
		engine:  derive.NewEngine(logger, derive.WithFallbackPivots(cfg.FallbackPivots)),
		parties: party.NewSource(logger, exec("party_api"), cfg.PartyAPIURL, cache.NewTTL[model.PartySpreadConfig](cfg.PartyCacheTTL)),
	}
	if cfg.GoldFeedPollURL != "" {
		tk.poller = feed.NewGoldPoller(logger, exec(feed.FeedGold), cfg.GoldFeedPollURL, tk.gold, cfg.GoldPollInterval)
	}
	return tk
}

// snapshot fetches pivots and, when configured, one gold tick, then derives base.
func (tk *toolkit) snapshot(ctx context.Context, base model.CurrencyCode) (model.RateSnapshot, error) {
	supported, err := model.ParseCurrencies(tk.cfg.SupportedCurrencies)
	if err != nil {
		return model.RateSnapshot{}, err
	}

	var pivots model.PivotRateSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := tk.pivots.Fetch(gctx)
		if err != nil {
			return err
		}
		pivots = p
		return nil
	})
	if tk.poller != nil {
		g.Go(func() error {
			if _, err := tk.poller.PollOnce(gctx); err != nil {
				tk.logger.Warn("ratectl.gold_poll_failed", zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.RateSnapshot{}, err
	}
	return tk.engine.Derive(base, &pivots, tk.gold.Latest(), supported, nil)
}

func newRootCmd() *cobra.Command {
	var (
		asJSON   bool
		logLevel string
		tk       *toolkit
	)

	root := &cobra.Command{
		Use:           "ratectl",
		Short:         "Operator tooling for the rate desk",
		Long:          `Fetches live pivots once and prints derived or party-priced rates using the same feed, derivation and pricing code as the service.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newCLILogger(logLevel)
			if err != nil {
				return err
			}
			tk = newToolkit(config.Load(), logger)
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")

	ratesCmd := &cobra.Command{
		Use:   "rates",
		Short: "Print the derived snapshot for a base currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := baseFlag(cmd)
			if err != nil {
				return err
			}
			snap, err := tk.snapshot(cmd.Context(), base)
			if err != nil {
				return fmt.Errorf("derive %s: %w", base, err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			return writeSnapshot(cmd.OutOrStdout(), snap)
		},
	}
	ratesCmd.Flags().String("base", "AED", "Base currency")

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Print party-priced pairs for a base currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := baseFlag(cmd)
			if err != nil {
				return err
			}
			partyID, _ := cmd.Flags().GetString("party")
			if partyID == "" {
				return fmt.Errorf("--party is required")
			}

			var (
				snap model.RateSnapshot
				cfg  model.PartySpreadConfig
			)
			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				s, err := tk.snapshot(gctx, base)
				snap = s
				return err
			})
			g.Go(func() error {
				c, err := tk.parties.Get(gctx, partyID)
				cfg = c
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			pairs := pricing.Price(snap, cfg)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), pairs)
			}
			return writePairs(cmd.OutOrStdout(), pairs)
		},
	}
	priceCmd.Flags().String("base", "AED", "Base currency")
	priceCmd.Flags().String("party", "", "Party id whose spreads apply")

	root.AddCommand(ratesCmd, priceCmd)
	return root
}

func baseFlag(cmd *cobra.Command) (model.CurrencyCode, error) {
	raw, err := cmd.Flags().GetString("base")
	if err != nil {
		return "", err
	}
	return model.ParseCurrency(raw)
}

func newCLILogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSnapshot(w io.Writer, snap model.RateSnapshot) error {
	quotes := make([]model.CurrencyCode, 0, len(snap.Rates))
	for q := range snap.Rates {
		quotes = append(quotes, q)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i] < quotes[j] })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "BASE %s\tfetched %s", snap.Base, snap.FetchedAt.Format(time.RFC3339))
	if snap.Degraded {
		fmt.Fprint(tw, "\t(degraded)")
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "QUOTE\tVALUE\tCHANGE\tCHANGE%\tTREND")
	for _, q := range quotes {
		r := snap.Rates[q]
		if r.Unsupported {
			fmt.Fprintf(tw, "%s\t-\t-\t-\tunsupported\n", q)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.2f%%\t%s\n", q, r.Value, r.Change, r.ChangePercent, r.Trend)
	}
	return tw.Flush()
}

func writePairs(w io.Writer, pairs []model.PricedPair) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tVALUE\tBUY\tSELL\tSPREAD%")
	for _, p := range pairs {
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.6f\t%.2f%%\n", p.PairCode, p.Value, p.BuyRate, p.SellRate, p.SpreadPercent)
	}
	return tw.Flush()
}
