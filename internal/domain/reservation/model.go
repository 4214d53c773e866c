// Package reservation provides soft allocation of available stock. A
// reservation raises the reserved counter of one projection without moving
// on-hand; consuming it hands the quantity over to an outbound movement.
package reservation

import (
	"context"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/movement"
)

// Status of a reservation. Transitions: active -> released, active ->
// consumed. Released and consumed are terminal.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusReleased Status = "RELEASED"
	StatusConsumed Status = "CONSUMED"
)

// Reservation is one soft allocation against a projection.
type Reservation struct {
	ID    id.ID       `db:"id" json:"id"`
	Scope scope.Scope `db:"scope" json:"scope"`

	ProductID   id.ID  `db:"product_id" json:"productId"`
	LocationID  id.ID  `db:"location_id" json:"locationId"`
	WarehouseID id.ID  `db:"warehouse_id" json:"warehouseId"`
	LotID       *id.ID `db:"lot_id" json:"lotId,omitempty"`

	Qty types.Quantity `db:"qty" json:"qty"`

	// Reference is the upstream operation holding the reservation.
	// Unique per scope: the idempotency key.
	Reference movement.ExternalReference `db:"ref" json:"externalReference"`

	Status Status `db:"status" json:"status"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ReserveInput carries the fields for placing a reservation.
type ReserveInput struct {
	Scope scope.Scope

	ProductID  id.ID
	LocationID id.ID
	LotID      *id.ID
	Qty        types.Quantity

	Reference movement.ExternalReference
}

func (in *ReserveInput) Validate(ctx context.Context) error {
	if err := in.Scope.Validate(); err != nil {
		return err
	}
	if id.IsNil(in.ProductID) {
		return apperror.NewInvalidInput("product is required").WithDetail("field", "productId")
	}
	if id.IsNil(in.LocationID) {
		return apperror.NewInvalidInput("location is required").WithDetail("field", "locationId")
	}
	if !in.Qty.IsPositive() {
		return apperror.NewInvalidInput("quantity must be positive").
			WithDetail("field", "qty").
			WithDetail("value", in.Qty.String())
	}
	return in.Reference.Validate()
}
