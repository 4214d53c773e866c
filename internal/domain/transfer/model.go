// Package transfer orchestrates two-warehouse stock moves as a small state
// machine over the reservation engine and the movement ledger. Goods travel
// through the origin's transit location so quantities stay accounted for
// while physically on the road.
package transfer

import (
	"context"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
)

// State of a transfer. Reachable transitions:
// draft -> confirmed -> in_transit -> done, and cancel from draft or
// confirmed.
type State string

const (
	StateDraft     State = "DRAFT"
	StateConfirmed State = "CONFIRMED"
	StateInTransit State = "IN_TRANSIT"
	StateDone      State = "DONE"
	StateCancelled State = "CANCELLED"
)

// Line is one product position of a transfer.
type Line struct {
	LineID    id.ID          `db:"line_id" json:"lineId"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	LotID     *id.ID         `db:"lot_id" json:"lotId,omitempty"`
	Qty       types.Quantity `db:"qty" json:"qty"`
}

// Transfer is a two-warehouse move document.
type Transfer struct {
	ID    id.ID       `db:"id" json:"id"`
	Scope scope.Scope `db:"scope" json:"scope"`

	OriginWarehouseID      id.ID `db:"origin_warehouse_id" json:"originWarehouseId"`
	DestinationWarehouseID id.ID `db:"destination_warehouse_id" json:"destinationWarehouseId"`

	Lines []Line `db:"-" json:"lines"`

	State State `db:"state" json:"state"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CreateInput carries the fields for a new draft transfer.
type CreateInput struct {
	Scope scope.Scope

	OriginWarehouseID      id.ID
	DestinationWarehouseID id.ID

	Lines []LineInput
}

// LineInput is one requested line.
type LineInput struct {
	ProductID id.ID
	LotID     *id.ID
	Qty       types.Quantity
}

func (in *CreateInput) Validate(ctx context.Context) error {
	if err := in.Scope.Validate(); err != nil {
		return err
	}
	if id.IsNil(in.OriginWarehouseID) || id.IsNil(in.DestinationWarehouseID) {
		return apperror.NewInvalidInput("origin and destination warehouses are required")
	}
	if in.OriginWarehouseID == in.DestinationWarehouseID {
		return apperror.NewInvalidInput("origin and destination warehouses must differ").
			WithDetail("warehouseId", in.OriginWarehouseID)
	}
	if len(in.Lines) == 0 {
		return apperror.NewInvalidInput("transfer requires at least one line")
	}
	for i, line := range in.Lines {
		if id.IsNil(line.ProductID) {
			return apperror.NewInvalidInput("line product is required").WithDetail("line", i)
		}
		if !line.Qty.IsPositive() {
			return apperror.NewInvalidInput("line quantity must be positive").
				WithDetail("line", i).
				WithDetail("value", line.Qty.String())
		}
	}
	return nil
}
