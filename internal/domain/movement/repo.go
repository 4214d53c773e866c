package movement

import (
	"context"
	"errors"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
)

// ErrDuplicateReference is returned by Create when another movement with the
// same external reference already exists in the scope. Callers treat it as
// "already applied": re-read the existing movement and return it.
var ErrDuplicateReference = errors.New("movement: external reference already exists")

// Filter narrows movement listings.
type Filter struct {
	ProductID  *id.ID
	LocationID *id.ID // matches either side of the movement
	Type       *Type
	Limit      int
}

// Repository persists ledger entries. Movements are append-only: there is no
// update or delete. Uniqueness of (scope, reference) is enforced by storage.
type Repository interface {
	// Create persists the movement. Returns ErrDuplicateReference when the
	// external reference is already taken in the scope.
	Create(ctx context.Context, m *Movement) error

	GetByID(ctx context.Context, sc scope.Scope, movementID id.ID) (*Movement, error)

	// GetByReference returns (nil, nil) when no movement carries the
	// reference.
	GetByReference(ctx context.Context, sc scope.Scope, ref ExternalReference) (*Movement, error)

	List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Movement, error)
}
