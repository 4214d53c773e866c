package adjustment

import (
	"context"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
)

// Filter narrows session listings.
type Filter struct {
	State      *State
	LocationID *id.ID
	Limit      int
}

// Repository persists count sessions. UpdateState is conditional on the
// current state, UpdateLines replaces the line set of a session.
type Repository interface {
	Create(ctx context.Context, a *Adjustment) error

	GetByID(ctx context.Context, sc scope.Scope, adjustmentID id.ID) (*Adjustment, error)

	// UpdateState flips state in a single conditional write. Returns
	// false when the session was not in the expected state.
	UpdateState(ctx context.Context, sc scope.Scope, adjustmentID id.ID, from, to State) (bool, error)

	UpdateLines(ctx context.Context, sc scope.Scope, adjustmentID id.ID, lines []Line) error

	List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Adjustment, error)
}
