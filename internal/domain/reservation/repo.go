package reservation

import (
	"context"
	"errors"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/domain/movement"
)

// ErrDuplicateReference is returned by Create when the reference is already
// taken in the scope.
var ErrDuplicateReference = errors.New("reservation: external reference already exists")

// Filter narrows reservation listings.
type Filter struct {
	ProductID  *id.ID
	LocationID *id.ID
	Status     *Status
	Limit      int
}

// Repository persists reservations. UpdateStatus is the only mutation after
// create and is conditional on the current status: concurrent releases or
// consumes of the same reservation resolve to exactly one winner.
type Repository interface {
	Create(ctx context.Context, res *Reservation) error

	GetByID(ctx context.Context, sc scope.Scope, reservationID id.ID) (*Reservation, error)

	// GetByReference returns (nil, nil) when no reservation carries the
	// reference.
	GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*Reservation, error)

	// UpdateStatus flips status from one value to another in a single
	// conditional write. Returns false when the reservation was not in
	// the expected status.
	UpdateStatus(ctx context.Context, sc scope.Scope, reservationID id.ID, from, to Status) (bool, error)

	List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Reservation, error)
}
