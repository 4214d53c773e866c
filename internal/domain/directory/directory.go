// Package directory declares the external collaborators the ledger consumes:
// the warehouse directory and the per-tenant module activation check.
// Warehouse administration itself lives outside this subsystem.
package directory

import (
	"context"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
)

// WarehouseInfo is the resolved directory entry for a warehouse.
type WarehouseInfo struct {
	WarehouseID id.ID
	Code        string
	Scope       scope.Scope

	// AllowNegativeStock permits on-hand to go below zero for this
	// warehouse. Guarded decrements skip the floor check when set.
	AllowNegativeStock bool
}

// Warehouses resolves warehouse ids to their owning scope and policy flags.
type Warehouses interface {
	Resolve(ctx context.Context, warehouseID id.ID) (*WarehouseInfo, error)
}

// Modules answers whether an optional platform module is switched on for a
// tenant (for example "accounting", which turns movement postings into
// ledger business events).
type Modules interface {
	IsActive(ctx context.Context, tenantID, moduleKey string) bool
}
