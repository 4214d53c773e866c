// Package adjustment provides the count-and-reconcile cycle: snapshot the
// system quantity, count physically, decide final figures and post the
// deltas to the movement ledger as ADJUST entries.
package adjustment

import (
	"context"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
)

// State of a count session. Transitions:
// draft -> counting -> posted, cancel from any non-terminal state.
// Final quantities are settled within counting; posting requires every
// line to carry one.
type State string

const (
	StateDraft     State = "DRAFT"
	StateCounting  State = "COUNTING"
	StatePosted    State = "POSTED"
	StateCancelled State = "CANCELLED"
)

// LineStatus compares the count against the snapshot.
type LineStatus string

const (
	LineStatusPending LineStatus = "PENDING"
	LineStatusOK      LineStatus = "OK"
	LineStatusDiff    LineStatus = "DIFF"
)

// Line is one counted product position.
type Line struct {
	LineID    id.ID  `db:"line_id" json:"lineId"`
	ProductID id.ID  `db:"product_id" json:"productId"`
	LotID     *id.ID `db:"lot_id" json:"lotId,omitempty"`

	// SystemQtyAtStart is the projection on-hand captured when the
	// session was created. The posted delta is measured against this
	// snapshot, not against the live figure.
	SystemQtyAtStart types.Quantity `db:"system_qty_at_start" json:"systemQtyAtStart"`

	CountedQty *types.Quantity `db:"counted_qty" json:"countedQty,omitempty"`
	FinalQty   *types.Quantity `db:"final_qty" json:"finalQty,omitempty"`

	Status LineStatus `db:"status" json:"status"`
}

// Adjustment is one count session at a single location.
type Adjustment struct {
	ID    id.ID       `db:"id" json:"id"`
	Scope scope.Scope `db:"scope" json:"scope"`

	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
	LocationID  id.ID `db:"location_id" json:"locationId"`

	Lines []Line `db:"-" json:"lines"`

	State State `db:"state" json:"state"`

	PostedAt  *time.Time `db:"posted_at" json:"postedAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// CreateInput opens a session over a set of products at one location.
type CreateInput struct {
	Scope scope.Scope

	LocationID id.ID

	Lines []LineInput
}

// LineInput names one product to count.
type LineInput struct {
	ProductID id.ID
	LotID     *id.ID
}

func (in *CreateInput) Validate(ctx context.Context) error {
	if err := in.Scope.Validate(); err != nil {
		return err
	}
	if id.IsNil(in.LocationID) {
		return apperror.NewInvalidInput("location is required").WithDetail("field", "locationId")
	}
	if len(in.Lines) == 0 {
		return apperror.NewInvalidInput("count session requires at least one line")
	}
	seen := make(map[id.ID]bool, len(in.Lines))
	for i, line := range in.Lines {
		if id.IsNil(line.ProductID) {
			return apperror.NewInvalidInput("line product is required").WithDetail("line", i)
		}
		if line.LotID == nil && seen[line.ProductID] {
			return apperror.NewInvalidInput("duplicate product in count session").
				WithDetail("productId", line.ProductID)
		}
		seen[line.ProductID] = true
	}
	return nil
}

// Decision fixes the final quantity for one line during review.
type Decision struct {
	LineID   id.ID
	FinalQty types.Quantity
}
