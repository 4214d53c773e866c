// Package events defines the outbound event contract of the stock ledger.
// Publishing is fire-and-forget: delivery, retries and ordering belong to
// the external event transport. Callers log publish failures and move on.
package events

import (
	"context"

	"stokado/internal/core/scope"
	"stokado/pkg/logger"
)

// Module key under which ledger events are published.
const ModuleStock = "stock"

// Event types emitted by the ledger.
const (
	TypeStockMoved                  = "StockMoved"
	TypeStockAdjusted               = "StockAdjusted"
	TypeStockReserved               = "StockReserved"
	TypeStockReservationReleased    = "StockReservationReleased"
	TypeStockReservationConsumed    = "StockReservationConsumed"
	TypeTransferDispatched          = "TransferDispatched"
	TypeTransferReceived            = "TransferReceived"
	TypeAccountingStockLedgerUpsert = "StockLedgerEntryRequested"
)

// Publisher delivers domain events to interested modules.
// Implementations must not block on downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, sc scope.Scope, moduleKey, eventType string, payload any) error
}

// Emit publishes through p and logs failures instead of propagating them.
// Synchronous retry is explicitly not our job.
func Emit(ctx context.Context, p Publisher, sc scope.Scope, moduleKey, eventType string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, sc, moduleKey, eventType, payload); err != nil {
		logger.Error(ctx, "event publish failed",
			"module", moduleKey,
			"event_type", eventType,
			"error", err,
		)
	}
}

// NopPublisher drops all events. Useful for tools and tests that do not
// care about the event stream.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, scope.Scope, string, string, any) error { return nil }

var _ Publisher = NopPublisher{}
