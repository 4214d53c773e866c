package transfer

import (
	"context"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
)

// Filter narrows transfer listings.
type Filter struct {
	State       *State
	WarehouseID *id.ID // matches origin or destination
	Limit       int
}

// Repository persists transfer documents. UpdateState is conditional on the
// current state: concurrent transitions of the same document resolve to
// exactly one winner.
type Repository interface {
	Create(ctx context.Context, t *Transfer) error

	GetByID(ctx context.Context, sc scope.Scope, transferID id.ID) (*Transfer, error)

	// UpdateState flips state from one value to another in a single
	// conditional write. Returns false when the document was not in the
	// expected state.
	UpdateState(ctx context.Context, sc scope.Scope, transferID id.ID, from, to State) (bool, error)

	List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Transfer, error)
}
