package stock

import (
	"context"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
)

// Repository is the projection store. The four Apply/guard operations are
// the only synchronization primitives the ledger relies on: each is an
// atomic conditional single-record update, evaluated indivisibly at write
// time. No in-process locking is assumed anywhere above this interface.
type Repository interface {
	// Get returns the projection for key, or a zero-quantity projection
	// when the key has never been touched.
	Get(ctx context.Context, key Key) (*Projection, error)

	// AddOnHand increments on-hand by qty (qty > 0), creating the
	// projection lazily.
	AddOnHand(ctx context.Context, key Key, qty types.Quantity) (*Projection, error)

	// SubOnHand decrements on-hand by qty (qty > 0). Unless
	// allowNegative, the write is guarded by on_hand >= qty; a failed
	// guard returns an insufficient-stock AppError and leaves the
	// projection unchanged.
	SubOnHand(ctx context.Context, key Key, qty types.Quantity, allowNegative bool) (*Projection, error)

	// Reserve increments reserved by qty, guarded by
	// on_hand - reserved >= qty unless allowNegative. A failed guard
	// returns an insufficient-available AppError.
	Reserve(ctx context.Context, key Key, qty types.Quantity, allowNegative bool) (*Projection, error)

	// ReleaseReserved decrements reserved by qty, guarded by
	// reserved >= qty.
	ReleaseReserved(ctx context.Context, key Key, qty types.Quantity) (*Projection, error)

	// Consume decrements both on-hand and reserved by qty in a single
	// conditional write, guarded by reserved >= qty.
	Consume(ctx context.Context, key Key, qty types.Quantity) (*Projection, error)

	// HasStock reports whether any projection at the location holds a
	// non-zero on-hand or reserved quantity.
	HasStock(ctx context.Context, sc scope.Scope, locationID id.ID) (bool, error)

	List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Projection, error)
}
