// Package ledger executes, edits and soft-deletes trades against the
// persistence service and keeps a local view of the ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/pkg/eventbus"
	"github.com/goldline/ratedesk/pkg/model"
)

// Errors returned by ledger mutations and the trade stores.
var (
	// ErrInvalidAmount rejects a zero or negative amount.
	ErrInvalidAmount = errors.New("ledger: amount must be greater than zero")
	// ErrNoParty rejects a ticket without a party.
	ErrNoParty = errors.New("ledger: a party is required")
	// ErrInvalidPair rejects a pair code that does not parse.
	ErrInvalidPair = errors.New("ledger: invalid currency pair")
	// ErrMissingRate rejects a zero or negative rate.
	ErrMissingRate = errors.New("ledger: rate must be greater than zero")
	// ErrInvalidType rejects a trade type other than BUY or SELL.
	ErrInvalidType = errors.New("ledger: trade type must be BUY or SELL")
	// ErrNotFound is returned when the order ID is unknown.
	ErrNotFound = errors.New("ledger: trade not found")
)

// Store persists trades. Server-assigned fields come back in the result.
type Store interface {
	List(ctx context.Context) ([]model.Trade, error)
	Create(ctx context.Context, t model.Trade) (model.Trade, error)
	Update(ctx context.Context, t model.Trade) (model.Trade, error)
	Delete(ctx context.Context, orderID string) error
}

// ExecuteRequest is a trade ticket. Editing, when set, turns the call into
// an update of that trade.
type ExecuteRequest struct {
	Type      model.TradeType
	PairCode  string
	Rate      decimal.Decimal
	Amount    decimal.Decimal
	PartyID   string
	Reference string
	Pricing   *model.PricedPair
	Editing   *model.Trade
}

// Observer is told about every mutation attempt.
type Observer func(op model.TradeOp, err error)

// Ledger coordinates trade mutations. It does not serialize concurrent
// mutations of the same order.
type Ledger struct {
	logger   *zap.Logger
	store    Store
	bus      *eventbus.EventBus
	now      func() time.Time
	newID    func() string
	observer Observer

	mu     sync.RWMutex
	trades map[string]model.Trade
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to stamp trades.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// WithIDGenerator overrides how new order IDs are minted.
func WithIDGenerator(fn func() string) Option { return func(l *Ledger) { l.newID = fn } }

// WithObserver registers o to be told about every mutation attempt.
func WithObserver(o Observer) Option { return func(l *Ledger) { l.observer = o } }

// New constructs a Ledger. bus may be nil.
func New(logger *zap.Logger, store Store, bus *eventbus.EventBus, opts ...Option) *Ledger {
	l := &Ledger{
		logger: logger,
		store:  store,
		bus:    bus,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		trades: make(map[string]model.Trade),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Sync replaces the local view with the persisted ledger.
func (l *Ledger) Sync(ctx context.Context) error {
	list, err := l.store.List(ctx)
	if err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	view := make(map[string]model.Trade, len(list))
	for _, t := range list {
		view[t.OrderID] = t
	}
	l.mu.Lock()
	l.trades = view
	l.mu.Unlock()
	l.logger.Info("ledger.synced", zap.Int("trades", len(list)))
	return nil
}

// Active returns live trades, newest first.
func (l *Ledger) Active() []model.Trade {
	l.mu.RLock()
	out := make([]model.Trade, 0, len(l.trades))
	for _, t := range l.trades {
		if t.Status != model.TradeDeleted {
			out = append(out, t)
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

// Get returns the local record for orderID.
func (l *Ledger) Get(orderID string) (model.Trade, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.trades[orderID]
	return t, ok
}

// Execute validates the ticket, computes Converted = Amount × Rate and
// persists it as a new trade or as an update of req.Editing.
func (l *Ledger) Execute(ctx context.Context, req ExecuteRequest) (model.Trade, error) {
	op := model.TradeExecuted
	if req.Editing != nil {
		op = model.TradeEdited
	}

	trade, err := l.build(req)
	if err != nil {
		l.observe(op, err)
		return model.Trade{}, err
	}

	var saved model.Trade
	if req.Editing != nil {
		saved, err = l.store.Update(ctx, trade)
	} else {
		saved, err = l.store.Create(ctx, trade)
	}
	if err != nil {
		l.logger.Warn("ledger.persist_failed",
			zap.String("op", string(op)),
			zap.String("order_id", trade.OrderID),
			zap.Error(err))
		l.observe(op, err)
		return model.Trade{}, fmt.Errorf("persist trade: %w", err)
	}

	final := merge(trade, saved)
	l.apply(op, final)
	return final, nil
}

// Edit recomputes and persists t under its existing order id, keeping the
// original reference.
func (l *Ledger) Edit(ctx context.Context, t model.Trade) (model.Trade, error) {
	if strings.TrimSpace(t.OrderID) == "" {
		l.observe(model.TradeEdited, ErrNotFound)
		return model.Trade{}, ErrNotFound
	}
	editing := t
	if orig, ok := l.Get(t.OrderID); ok {
		editing.Reference = orig.Reference
	}

	return l.Execute(ctx, ExecuteRequest{
		Type:      t.Type,
		PairCode:  t.PairCode(),
		Rate:      t.Rate,
		Amount:    t.Amount,
		PartyID:   t.PartyID,
		Reference: editing.Reference,
		Editing:   &editing,
	})
}

// Delete soft-deletes orderID. On failure the local view is untouched.
func (l *Ledger) Delete(ctx context.Context, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		l.observe(model.TradeRemoved, ErrNotFound)
		return ErrNotFound
	}
	if err := l.store.Delete(ctx, orderID); err != nil {
		l.logger.Warn("ledger.delete_failed", zap.String("order_id", orderID), zap.Error(err))
		l.observe(model.TradeRemoved, err)
		return fmt.Errorf("delete trade %s: %w", orderID, err)
	}

	l.mu.Lock()
	t, ok := l.trades[orderID]
	if !ok {
		t = model.Trade{OrderID: orderID}
	}
	t.Status = model.TradeDeleted
	l.trades[orderID] = t
	l.mu.Unlock()

	l.observe(model.TradeRemoved, nil)
	l.publish(model.TradeRemoved, t)
	l.logger.Info("ledger.trade_deleted", zap.String("order_id", orderID))
	return nil
}

// Validate checks the ticket fields that need no market data.
func (req ExecuteRequest) Validate() error {
	if !req.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(req.PartyID) == "" {
		return ErrNoParty
	}
	if _, _, err := model.ParsePairCode(req.PairCode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPair, err)
	}
	if _, err := model.ParseTradeType(string(req.Type)); err != nil {
		return ErrInvalidType
	}
	return nil
}

func (l *Ledger) build(req ExecuteRequest) (model.Trade, error) {
	if err := req.Validate(); err != nil {
		return model.Trade{}, err
	}
	if !req.Rate.IsPositive() {
		return model.Trade{}, ErrMissingRate
	}
	base, quote, _ := model.ParsePairCode(req.PairCode)
	tt, _ := model.ParseTradeType(string(req.Type))

	t := model.Trade{
		OrderID:        l.newID(),
		Reference:      req.Reference,
		Type:           tt,
		BaseCurrency:   base,
		TargetCurrency: quote,
		Amount:         req.Amount,
		Rate:           req.Rate,
		Converted:      req.Amount.Mul(req.Rate),
		PartyID:        req.PartyID,
		Timestamp:      l.now().UTC(),
		Status:         model.TradeActive,
	}
	if req.Editing != nil {
		t.OrderID = req.Editing.OrderID
		if t.Reference == "" {
			t.Reference = req.Editing.Reference
		}
	}
	if p := req.Pricing; p != nil {
		t.CurrentRate = decimal.NewFromFloat(p.Value)
		t.BuyRate = decimal.NewFromFloat(p.BuyRate)
		t.SellRate = decimal.NewFromFloat(p.SellRate)
	} else if req.Editing != nil {
		t.CurrentRate = req.Editing.CurrentRate
		t.BuyRate = req.Editing.BuyRate
		t.SellRate = req.Editing.SellRate
	}
	return t, nil
}

// merge takes server-assigned identity fields from saved while keeping the
// computed money fields of local.
func merge(local, saved model.Trade) model.Trade {
	out := local
	if saved.OrderID != "" {
		out.OrderID = saved.OrderID
	}
	if saved.Reference != "" {
		out.Reference = saved.Reference
	}
	if !saved.Timestamp.IsZero() {
		out.Timestamp = saved.Timestamp
	}
	return out
}

func (l *Ledger) apply(op model.TradeOp, t model.Trade) {
	l.mu.Lock()
	l.trades[t.OrderID] = t
	l.mu.Unlock()

	l.observe(op, nil)
	l.publish(op, t)
	l.logger.Info("ledger.trade_"+string(op),
		zap.String("order_id", t.OrderID),
		zap.String("pair", t.PairCode()),
		zap.String("amount", t.Amount.String()),
		zap.String("rate", t.Rate.String()),
		zap.String("converted", t.Converted.String()))
}

func (l *Ledger) publish(op model.TradeOp, t model.Trade) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(model.TradeEvent{Op: op, Trade: t, Timestamp: l.now().UTC()})
}

func (l *Ledger) observe(op model.TradeOp, err error) {
	if l.observer != nil {
		l.observer(op, err)
	}
}
