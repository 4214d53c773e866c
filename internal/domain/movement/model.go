// Package movement provides the append-only stock movement ledger. It is
// the sole writer of on-hand quantities: every on-hand change enters the
// system as exactly one posted movement, idempotent by external reference.
package movement

import (
	"context"
	"fmt"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
)

// Type defines the direction shape of a movement.
type Type string

const (
	TypeIn       Type = "IN"
	TypeOut      Type = "OUT"
	TypeInternal Type = "INTERNAL"
	TypeAdjust   Type = "ADJUST"
	TypeReturn   Type = "RETURN"
	TypeScrap    Type = "SCRAP"
)

// Status of a posted movement. Movements are immutable; REVERSED is a
// terminal marker left by an explicit reversal, not an update of figures.
type Status string

const (
	StatusPosted   Status = "POSTED"
	StatusReversed Status = "REVERSED"
)

// ExternalReference identifies the upstream operation that produced the
// movement. Unique per (tenant, legal entity): the idempotency key.
type ExternalReference struct {
	Module   string `db:"ref_module" json:"module"`
	Entity   string `db:"ref_entity" json:"entity"`
	EntityID string `db:"ref_entity_id" json:"entityId"`
	LineID   string `db:"ref_line_id" json:"lineId"`
}

// String renders the reference as a single key.
func (r ExternalReference) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", r.Module, r.Entity, r.EntityID, r.LineID)
}

// IsZero reports whether the reference is entirely empty.
func (r ExternalReference) IsZero() bool {
	return r.Module == "" && r.Entity == "" && r.EntityID == "" && r.LineID == ""
}

// Validate checks the reference is fully specified.
func (r ExternalReference) Validate() error {
	if r.Module == "" || r.Entity == "" || r.EntityID == "" {
		return apperror.NewInvalidInput("external reference requires module, entity and entityId").
			WithDetail("reference", r.String())
	}
	return nil
}

// Movement is one immutable ledger entry.
type Movement struct {
	ID    id.ID       `db:"id" json:"id"`
	Scope scope.Scope `db:"scope" json:"scope"`

	Type      Type   `db:"type" json:"type"`
	ProductID id.ID  `db:"product_id" json:"productId"`
	LotID     *id.ID `db:"lot_id" json:"lotId,omitempty"`

	// Qty is always positive; direction comes from Type and the
	// from/to pair.
	Qty types.Quantity `db:"qty" json:"qty"`

	FromLocationID *id.ID `db:"from_location_id" json:"fromLocationId,omitempty"`
	ToLocationID   *id.ID `db:"to_location_id" json:"toLocationId,omitempty"`

	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	Reference ExternalReference `db:"ref" json:"externalReference"`

	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// PostInput carries the fields for posting a movement.
type PostInput struct {
	Scope scope.Scope

	Type      Type
	ProductID id.ID
	LotID     *id.ID
	Qty       types.Quantity

	FromLocationID *id.ID
	ToLocationID   *id.ID

	UnitCost types.Money

	Reference ExternalReference
}

// Validate checks scope, quantity, product and the from/to shape for the
// movement type.
func (in *PostInput) Validate(ctx context.Context) error {
	if err := in.Scope.Validate(); err != nil {
		return err
	}
	if id.IsNil(in.ProductID) {
		return apperror.NewInvalidInput("product is required").WithDetail("field", "productId")
	}
	if !in.Qty.IsPositive() {
		return apperror.NewInvalidInput("quantity must be positive").
			WithDetail("field", "qty").
			WithDetail("value", in.Qty.String())
	}
	if err := in.Reference.Validate(); err != nil {
		return err
	}
	return in.validateShape()
}

func (in *PostInput) validateShape() error {
	from, to := in.FromLocationID != nil, in.ToLocationID != nil

	switch in.Type {
	case TypeIn, TypeReturn:
		if !to || from {
			return apperror.NewInvalidInput("movement requires a destination location only").
				WithDetail("type", string(in.Type))
		}
	case TypeOut, TypeScrap:
		if !from || to {
			return apperror.NewInvalidInput("movement requires a source location only").
				WithDetail("type", string(in.Type))
		}
	case TypeInternal:
		if !from || !to {
			return apperror.NewInvalidInput("internal movement requires both locations").
				WithDetail("type", string(in.Type))
		}
		if *in.FromLocationID == *in.ToLocationID {
			return apperror.NewInvalidInput("internal movement requires distinct locations").
				WithDetail("locationId", *in.FromLocationID)
		}
	case TypeAdjust:
		if from == to { // both set or both missing
			return apperror.NewInvalidInput("adjustment requires exactly one location").
				WithDetail("type", string(in.Type))
		}
	default:
		return apperror.NewInvalidInput("unknown movement type").
			WithDetail("type", string(in.Type))
	}
	return nil
}
