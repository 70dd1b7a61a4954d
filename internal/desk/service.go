package desk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/ledger"
	"github.com/goldline/ratedesk/internal/pricing"
	"github.com/goldline/ratedesk/internal/watchlist"
	"github.com/goldline/ratedesk/pkg/model"
)

var (
	// ErrUnsupportedCurrency rejects currencies outside the configured set.
	ErrUnsupportedCurrency = errors.New("desk: unsupported currency")
	// ErrNoPrice is returned when a ticket's pair has no price in the snapshot.
	ErrNoPrice = errors.New("desk: no price for pair")
)

// PartySource is satisfied by *party.Source.
type PartySource interface {
	Get(ctx context.Context, id string) (model.PartySpreadConfig, error)
	Reload(ctx context.Context, id string) (model.PartySpreadConfig, error)
}

// PriceList is a party's priced pairs against one base.
type PriceList struct {
	Party           model.PartySpreadConfig `json:"party"`
	Base            model.CurrencyCode      `json:"base"`
	Pairs           []model.PricedPair      `json:"pairs"`
	FetchedAt       time.Time               `json:"fetchedAt"`
	Fresh           bool                    `json:"fresh"`
	UsingCachedData bool                    `json:"usingCachedData"`
	Notice          string                  `json:"notice,omitempty"`
}

// WatchlistView is a user's watchlist priced against its base.
type WatchlistView struct {
	Base   model.CurrencyCode `json:"base"`
	Items  []watchlist.Item   `json:"items"`
	Notice string             `json:"notice,omitempty"`
}

// TradeTicket is a trade request from the desk. A zero Rate takes the
// party's buy rate for BUY and sell rate for SELL.
type TradeTicket struct {
	Type      model.TradeType
	PairCode  string
	Amount    decimal.Decimal
	Rate      decimal.Decimal
	PartyID   string
	Reference string
	EditingID string
}

// Service is the desk's operation surface.
type Service struct {
	logger    *zap.Logger
	rates     *Refresher
	gold      GoldSource
	parties   PartySource
	lists     *watchlist.Registry
	ledger    *ledger.Ledger
	supported map[model.CurrencyCode]struct{}
}

// NewService wires the desk operations together.
func NewService(
	logger *zap.Logger,
	rates *Refresher,
	gold GoldSource,
	parties PartySource,
	lists *watchlist.Registry,
	l *ledger.Ledger,
	supported []model.CurrencyCode,
) *Service {
	set := make(map[model.CurrencyCode]struct{}, len(supported))
	for _, c := range supported {
		set[c] = struct{}{}
	}
	return &Service{
		logger:    logger,
		rates:     rates,
		gold:      gold,
		parties:   parties,
		lists:     lists,
		ledger:    l,
		supported: set,
	}
}

func (s *Service) checkSupported(code model.CurrencyCode) error {
	if _, ok := s.supported[code]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	return nil
}

// Rates returns the snapshot for base under the cache policy.
func (s *Service) Rates(ctx context.Context, base model.CurrencyCode) (RatesResult, error) {
	if err := s.checkSupported(base); err != nil {
		return RatesResult{}, err
	}
	return s.rates.Rates(ctx, base)
}

// RefreshRates forces a refresh of base.
func (s *Service) RefreshRates(ctx context.Context, base model.CurrencyCode) (RatesResult, error) {
	if err := s.checkSupported(base); err != nil {
		return RatesResult{}, err
	}
	return s.rates.ForceRefresh(ctx, base)
}

// Gold returns the latest gold quote.
func (s *Service) Gold() model.GoldQuote {
	return s.gold.Latest()
}

// Prices prices base for partyID.
func (s *Service) Prices(ctx context.Context, base model.CurrencyCode, partyID string) (PriceList, error) {
	cfg, err := s.parties.Get(ctx, partyID)
	if err != nil {
		return PriceList{}, err
	}
	return s.priceList(ctx, base, cfg)
}

// SelectParty reloads partyID's spreads and kicks off a refresh of base.
func (s *Service) SelectParty(ctx context.Context, partyID string, base model.CurrencyCode) (PriceList, error) {
	if err := s.checkSupported(base); err != nil {
		return PriceList{}, err
	}
	cfg, err := s.parties.Reload(ctx, partyID)
	if err != nil {
		return PriceList{}, err
	}
	s.logger.Info("desk.party_selected", zap.String("party_id", cfg.PartyID), zap.String("base", base.String()))
	s.rates.RefreshAsync(base)
	return s.priceList(ctx, base, cfg)
}

func (s *Service) priceList(ctx context.Context, base model.CurrencyCode, cfg model.PartySpreadConfig) (PriceList, error) {
	res, err := s.Rates(ctx, base)
	if err != nil {
		return PriceList{}, err
	}
	return PriceList{
		Party:           cfg,
		Base:            base,
		Pairs:           pricing.Price(res.Snapshot, cfg),
		FetchedAt:       res.Snapshot.FetchedAt,
		Fresh:           res.Fresh,
		UsingCachedData: res.UsingCachedData,
		Notice:          res.Notice,
	}, nil
}

// Watchlist returns user's watchlist, switching its base first when base is set.
func (s *Service) Watchlist(ctx context.Context, user string, base model.CurrencyCode) (WatchlistView, error) {
	t := s.lists.For(user)
	if base != "" {
		if err := s.checkSupported(base); err != nil {
			return WatchlistView{}, err
		}
		t.SetBase(base)
	}
	res, err := s.rates.Rates(ctx, t.Base())
	if err != nil {
		return WatchlistView{}, err
	}
	return WatchlistView{Base: t.Base(), Items: t.List(res.Snapshot), Notice: res.Notice}, nil
}

// Watch adds code to user's watchlist.
func (s *Service) Watch(user string, code model.CurrencyCode) error {
	if err := s.checkSupported(code); err != nil {
		return err
	}
	return s.lists.For(user).Add(code)
}

// Unwatch removes code from user's watchlist.
func (s *Service) Unwatch(user string, code model.CurrencyCode) {
	s.lists.For(user).Remove(code)
}

// Trades lists the active ledger.
func (s *Service) Trades() []model.Trade {
	return s.ledger.Active()
}

// ExecuteTrade prices the ticket against the party's current rates and
// executes it. With EditingID set the existing trade is edited instead,
// keeping its order id and reference.
func (s *Service) ExecuteTrade(ctx context.Context, t TradeTicket) (model.Trade, error) {
	req := ledger.ExecuteRequest{
		Type:      t.Type,
		PairCode:  t.PairCode,
		Rate:      t.Rate,
		Amount:    t.Amount,
		PartyID:   t.PartyID,
		Reference: t.Reference,
	}
	if err := req.Validate(); err != nil {
		return model.Trade{}, err
	}

	var orig model.Trade
	if t.EditingID != "" {
		var ok bool
		orig, ok = s.ledger.Get(t.EditingID)
		if !ok || orig.Status == model.TradeDeleted {
			return model.Trade{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, t.EditingID)
		}
	}

	base, quote, _ := model.ParsePairCode(t.PairCode)
	tt, _ := model.ParseTradeType(string(t.Type))
	pp, err := s.quote(ctx, base, quote, t.PartyID)
	if err != nil {
		return model.Trade{}, err
	}
	if !req.Rate.IsPositive() {
		rate := pp.BuyRate
		if tt == model.TradeSell {
			rate = pp.SellRate
		}
		req.Rate = decimal.NewFromFloat(rate)
	}

	if t.EditingID == "" {
		req.Pricing = &pp
		return s.ledger.Execute(ctx, req)
	}

	upd := orig
	upd.Type = tt
	upd.BaseCurrency = base
	upd.TargetCurrency = quote
	upd.Amount = req.Amount
	upd.Rate = req.Rate
	upd.PartyID = req.PartyID
	upd.CurrentRate = decimal.NewFromFloat(pp.Value)
	upd.BuyRate = decimal.NewFromFloat(pp.BuyRate)
	upd.SellRate = decimal.NewFromFloat(pp.SellRate)
	return s.ledger.Edit(ctx, upd)
}

func (s *Service) quote(ctx context.Context, base, quote model.CurrencyCode, partyID string) (model.PricedPair, error) {
	cfg, err := s.parties.Get(ctx, partyID)
	if err != nil {
		return model.PricedPair{}, err
	}
	res, err := s.Rates(ctx, base)
	if err != nil {
		return model.PricedPair{}, err
	}
	pp, ok := pricing.PriceOne(res.Snapshot, cfg, quote)
	if !ok || pp.Value <= 0 {
		return model.PricedPair{}, fmt.Errorf("%w: %s", ErrNoPrice, model.PairCode(base, quote))
	}
	return pp, nil
}

// DeleteTrade soft-deletes a trade.
func (s *Service) DeleteTrade(ctx context.Context, orderID string) error {
	return s.ledger.Delete(ctx, orderID)
}
