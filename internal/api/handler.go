package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/desk"
	"github.com/goldline/ratedesk/pkg/model"
)

// DeskService defines the desk operations needed by the handler.
type DeskService interface {
	Rates(ctx context.Context, base model.CurrencyCode) (desk.RatesResult, error)
	RefreshRates(ctx context.Context, base model.CurrencyCode) (desk.RatesResult, error)
	Gold() model.GoldQuote
	Prices(ctx context.Context, base model.CurrencyCode, partyID string) (desk.PriceList, error)
	SelectParty(ctx context.Context, partyID string, base model.CurrencyCode) (desk.PriceList, error)
	Watchlist(ctx context.Context, user string, base model.CurrencyCode) (desk.WatchlistView, error)
	Watch(user string, code model.CurrencyCode) error
	Unwatch(user string, code model.CurrencyCode)
	Trades() []model.Trade
	ExecuteTrade(ctx context.Context, t desk.TradeTicket) (model.Trade, error)
	DeleteTrade(ctx context.Context, orderID string) error
}

// DeskHandler handles HTTP API requests for the rate desk.
type DeskHandler struct {
	logger      *zap.Logger
	service     DeskService
	defaultBase model.CurrencyCode
}

// NewDeskHandler creates a new DeskHandler. defaultBase applies when a
// request names no base.
func NewDeskHandler(logger *zap.Logger, service DeskService, defaultBase model.CurrencyCode) *DeskHandler {
	return &DeskHandler{
		logger:      logger,
		service:     service,
		defaultBase: defaultBase,
	}
}

func (h *DeskHandler) fail(c *fiber.Ctx, event string, err error, fields ...zap.Field) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		h.logger.Error(event, append(fields, zap.Error(err))...)
	} else {
		h.logger.Warn(event, append(fields, zap.Error(err))...)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// GetRates serves the snapshot for :base.
func (h *DeskHandler) GetRates(c *fiber.Ctx) error {
	base, ok := currencyParam(c, c.Params("base"))
	if !ok {
		return nil
	}
	res, err := h.service.Rates(c.UserContext(), base)
	if err != nil {
		return h.fail(c, "api.rates_failed", err, zap.String("base", base.String()))
	}
	return c.JSON(res)
}

// RefreshRates forces a refresh of :base.
func (h *DeskHandler) RefreshRates(c *fiber.Ctx) error {
	base, ok := currencyParam(c, c.Params("base"))
	if !ok {
		return nil
	}
	res, err := h.service.RefreshRates(c.UserContext(), base)
	if err != nil {
		return h.fail(c, "api.refresh_failed", err, zap.String("base", base.String()))
	}
	return c.JSON(res)
}

// GetGold serves the latest gold quote.
func (h *DeskHandler) GetGold(c *fiber.Ctx) error {
	q := h.service.Gold()
	resp := GoldResponse{
		Bid:                q.Bid,
		Ask:                q.Ask,
		High:               q.High,
		Low:                q.Low,
		OpenPrice:          q.OpenPrice,
		MarketStatus:       string(q.MarketStatus),
		BidChanged:         string(q.BidChanged),
		DailyChange:        q.DailyChangeText(),
		DailyChangePercent: q.DailyChangePercentText(),
		ObservedAt:         q.ObservedAt,
	}
	if !q.MarketOpenedAt.IsZero() {
		t := q.MarketOpenedAt
		resp.MarketOpenedAt = &t
	}
	return c.JSON(resp)
}

// GetPrices serves :base priced for ?party=.
func (h *DeskHandler) GetPrices(c *fiber.Ctx) error {
	base, ok := currencyParam(c, c.Params("base"))
	if !ok {
		return nil
	}
	partyID := strings.TrimSpace(c.Query("party"))
	if partyID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "party is required"})
	}
	list, err := h.service.Prices(c.UserContext(), base, partyID)
	if err != nil {
		return h.fail(c, "api.prices_failed", err, zap.String("base", base.String()), zap.String("party_id", partyID))
	}
	return c.JSON(list)
}

// SelectParty reloads :id's spreads and returns its prices for ?base=.
func (h *DeskHandler) SelectParty(c *fiber.Ctx) error {
	base := h.defaultBase
	if raw := c.Query("base"); raw != "" {
		var ok bool
		if base, ok = currencyParam(c, raw); !ok {
			return nil
		}
	}
	list, err := h.service.SelectParty(c.UserContext(), c.Params("id"), base)
	if err != nil {
		return h.fail(c, "api.select_party_failed", err, zap.String("party_id", c.Params("id")))
	}
	return c.JSON(list)
}

// GetWatchlist serves :user's watchlist, switching base when ?base= is set.
func (h *DeskHandler) GetWatchlist(c *fiber.Ctx) error {
	var base model.CurrencyCode
	if raw := c.Query("base"); raw != "" {
		var ok bool
		if base, ok = currencyParam(c, raw); !ok {
			return nil
		}
	}
	view, err := h.service.Watchlist(c.UserContext(), c.Params("user"), base)
	if err != nil {
		return h.fail(c, "api.watchlist_failed", err, zap.String("user", c.Params("user")))
	}
	return c.JSON(view)
}

// AddToWatchlist adds {code} to :user's watchlist.
func (h *DeskHandler) AddToWatchlist(c *fiber.Ctx) error {
	req, ok := bindAndValidate[WatchRequest](c)
	if !ok {
		return nil
	}
	code, ok := currencyParam(c, req.Code)
	if !ok {
		return nil
	}
	if err := h.service.Watch(c.Params("user"), code); err != nil {
		return h.fail(c, "api.watch_failed", err, zap.String("user", c.Params("user")))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveFromWatchlist removes :code from :user's watchlist.
func (h *DeskHandler) RemoveFromWatchlist(c *fiber.Ctx) error {
	code, ok := currencyParam(c, c.Params("code"))
	if !ok {
		return nil
	}
	h.service.Unwatch(c.Params("user"), code)
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTrades serves the active ledger, newest first.
func (h *DeskHandler) ListTrades(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"trades": h.service.Trades()})
}

// ExecuteTrade handles trade execution requests.
func (h *DeskHandler) ExecuteTrade(c *fiber.Ctx) error {
	return h.trade(c, "", fiber.StatusCreated)
}

// EditTrade handles edits of trade :id.
func (h *DeskHandler) EditTrade(c *fiber.Ctx) error {
	return h.trade(c, c.Params("id"), fiber.StatusOK)
}

func (h *DeskHandler) trade(c *fiber.Ctx, editingID string, status int) error {
	req, ok := bindAndValidate[TradeRequest](c)
	if !ok {
		return nil
	}
	trade, err := h.service.ExecuteTrade(c.UserContext(), desk.TradeTicket{
		Type:      model.TradeType(strings.ToUpper(req.Type)),
		PairCode:  req.PairCode,
		Amount:    req.Amount,
		Rate:      req.Rate,
		PartyID:   req.PartyID,
		Reference: req.Reference,
		EditingID: editingID,
	})
	if err != nil {
		return h.fail(c, "api.trade_failed", err,
			zap.String("pair", req.PairCode),
			zap.String("party_id", req.PartyID),
			zap.String("editing_id", editingID))
	}
	return c.Status(status).JSON(trade)
}

// DeleteTrade soft-deletes trade :id.
func (h *DeskHandler) DeleteTrade(c *fiber.Ctx) error {
	if err := h.service.DeleteTrade(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, "api.delete_trade_failed", err, zap.String("order_id", c.Params("id")))
	}
	return c.SendStatus(fiber.StatusNoContent)
}
