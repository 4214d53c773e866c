// Package stock provides the stock-quantity projection: the materialized
// current view of on-hand and reserved quantities. It is never invoked on
// its own; only the movement ledger mutates on-hand and only the
// reservation engine mutates reserved.
package stock

import (
	"time"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
)

// Key identifies one projection record. WarehouseID is denormalized from
// the location so warehouse-wide listings need no join; it participates in
// lazy creation but not in identity.
type Key struct {
	Scope       scope.Scope
	ProductID   id.ID
	LocationID  id.ID
	WarehouseID id.ID
	LotID       *id.ID
}

// Projection is the current quantity state at one key.
// Created lazily on first touch; never deleted.
type Projection struct {
	Scope scope.Scope `db:"scope" json:"scope"`

	ProductID   id.ID  `db:"product_id" json:"productId"`
	LocationID  id.ID  `db:"location_id" json:"locationId"`
	WarehouseID id.ID  `db:"warehouse_id" json:"warehouseId"`
	LotID       *id.ID `db:"lot_id" json:"lotId,omitempty"`

	OnHand   types.Quantity `db:"on_hand" json:"onHand"`
	Reserved types.Quantity `db:"reserved" json:"reserved"`

	// Version increments on every write (monotonic).
	Version int64 `db:"version" json:"version"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Available is on-hand minus reserved. May be negative only when the
// owning warehouse permits negative stock.
func (p *Projection) Available() types.Quantity {
	return p.OnHand - p.Reserved
}

// Filter narrows projection listings.
type Filter struct {
	WarehouseID *id.ID
	LocationID  *id.ID
	ProductID   *id.ID
	ExcludeZero bool
}
