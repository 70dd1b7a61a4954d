package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/metrics"
	"github.com/goldline/ratedesk/pkg/eventbus"
	"github.com/goldline/ratedesk/pkg/model"
)

// DBExecutor is satisfied by *pgxpool.Pool.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const upsertQuery = `
	INSERT INTO desk.t_trade (
		s_id_order,
		s_reference,
		s_type,
		s_base_currency,
		s_target_currency,
		dec_amount,
		dec_rate,
		dec_converted,
		s_id_party,
		dec_current_rate,
		dec_buy_rate,
		dec_sell_rate,
		dt_trade,
		s_status,
		s_source
	)
	VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8,
		$9, $10, $11, $12, $13, $14, $15
	)
	ON CONFLICT (s_id_order)
	DO UPDATE SET
		s_reference = EXCLUDED.s_reference,
		s_type = EXCLUDED.s_type,
		dec_amount = EXCLUDED.dec_amount,
		dec_rate = EXCLUDED.dec_rate,
		dec_converted = EXCLUDED.dec_converted,
		s_id_party = EXCLUDED.s_id_party,
		dt_trade = EXCLUDED.dt_trade,
		s_status = EXCLUDED.s_status,
		s_source = EXCLUDED.s_source;
`

const deleteQuery = `
	UPDATE desk.t_trade
	SET s_status = 'DELETED', dt_deleted = $2
	WHERE s_id_order = $1;
`

// TradeWriter mirrors persisted trades into desk.t_trade.
type TradeWriter struct {
	db     DBExecutor
	logger *zap.Logger
	source string
}

// NewTradeWriter constructs a writer. source identifies the writing service.
func NewTradeWriter(db DBExecutor, logger *zap.Logger, source string) *TradeWriter {
	return &TradeWriter{
		db:     db,
		logger: logger,
		source: source,
	}
}

// Attach mirrors every trade event on bus. Failures are logged only.
func (w *TradeWriter) Attach(bus *eventbus.EventBus) {
	eventbus.Subscribe(bus, func(e model.TradeEvent) {
		_ = w.Apply(context.Background(), e)
	})
}

// Apply writes one trade event.
func (w *TradeWriter) Apply(ctx context.Context, e model.TradeEvent) error {
	if e.Op == model.TradeRemoved {
		return w.MarkDeleted(ctx, e.Trade.OrderID, e)
	}
	return w.Upsert(ctx, e.Trade)
}

// Upsert inserts or updates the mirror row for t.
func (w *TradeWriter) Upsert(ctx context.Context, t model.Trade) error {
	if t.OrderID == "" {
		return nil
	}

	_, err := w.db.Exec(ctx, upsertQuery,
		t.OrderID,                // s_id_order
		t.Reference,              // s_reference
		string(t.Type),           // s_type
		string(t.BaseCurrency),   // s_base_currency
		string(t.TargetCurrency), // s_target_currency
		t.Amount,                 // dec_amount
		t.Rate,                   // dec_rate
		t.Converted,              // dec_converted
		t.PartyID,                // s_id_party
		t.CurrentRate,            // dec_current_rate
		t.BuyRate,                // dec_buy_rate
		t.SellRate,               // dec_sell_rate
		t.Timestamp,              // dt_trade
		string(t.Status),         // s_status
		w.source,                 // s_source
	)
	if err != nil {
		w.logger.Error("audit.trade_upsert_failed",
			zap.String("order_id", t.OrderID),
			zap.String("party_id", t.PartyID),
			zap.Error(err),
		)
		metrics.IncError("audit", "upsert_failed")
		return err
	}

	w.logger.Info("audit.trade_upsert",
		zap.String("order_id", t.OrderID),
		zap.String("pair", t.PairCode()),
		zap.String("status", string(t.Status)),
		zap.Time("timestamp", t.Timestamp),
	)
	return nil
}

// MarkDeleted flags the mirror row for orderID as deleted.
func (w *TradeWriter) MarkDeleted(ctx context.Context, orderID string, e model.TradeEvent) error {
	if orderID == "" {
		return nil
	}
	tag, err := w.db.Exec(ctx, deleteQuery, orderID, e.Timestamp)
	if err != nil {
		w.logger.Error("audit.trade_delete_failed", zap.String("order_id", orderID), zap.Error(err))
		metrics.IncError("audit", "delete_failed")
		return err
	}
	if tag.RowsAffected() == 0 {
		w.logger.Warn("audit.trade_delete_unmatched", zap.String("order_id", orderID))
	}
	return nil
}
