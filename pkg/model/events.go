package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SnapshotEvent is emitted when a derived snapshot replaces the cache entry for its base.
type SnapshotEvent struct {
	Base      CurrencyCode `json:"base"`
	Sequence  uint64       `json:"sequence"`
	Snapshot  RateSnapshot `json:"snapshot"`
	AppliedAt time.Time    `json:"appliedAt"`
}

// TradeOp names a ledger mutation.
type TradeOp string

const (
	TradeExecuted TradeOp = "executed"
	TradeEdited   TradeOp = "edited"
	TradeRemoved  TradeOp = "deleted"
)

// TradeEvent is emitted after a ledger mutation has been persisted.
type TradeEvent struct {
	Op        TradeOp   `json:"op"`
	Trade     Trade     `json:"trade"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is the canonical wrapper for events leaving the service.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}
