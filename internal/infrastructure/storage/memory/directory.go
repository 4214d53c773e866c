package memory

import (
	"context"
	"sync"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/domain/directory"
)

// WarehouseDirectory is a static in-memory directory.Warehouses.
type WarehouseDirectory struct {
	mu         sync.Mutex
	warehouses map[id.ID]directory.WarehouseInfo
}

func NewWarehouseDirectory() *WarehouseDirectory {
	return &WarehouseDirectory{warehouses: make(map[id.ID]directory.WarehouseInfo)}
}

var _ directory.Warehouses = (*WarehouseDirectory)(nil)

func (d *WarehouseDirectory) Put(info directory.WarehouseInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warehouses[info.WarehouseID] = info
}

func (d *WarehouseDirectory) Resolve(ctx context.Context, warehouseID id.ID) (*directory.WarehouseInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.warehouses[warehouseID]
	if !ok {
		return nil, apperror.NewNotFound("warehouse", warehouseID)
	}
	return &info, nil
}

// ModuleDirectory reports module activation from a fixed set.
type ModuleDirectory struct {
	mu     sync.Mutex
	active map[string]map[string]bool // tenantID -> moduleKey
}

func NewModuleDirectory() *ModuleDirectory {
	return &ModuleDirectory{active: make(map[string]map[string]bool)}
}

var _ directory.Modules = (*ModuleDirectory)(nil)

func (d *ModuleDirectory) Activate(tenantID, moduleKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active[tenantID] == nil {
		d.active[tenantID] = make(map[string]bool)
	}
	d.active[tenantID][moduleKey] = true
}

func (d *ModuleDirectory) IsActive(ctx context.Context, tenantID, moduleKey string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[tenantID][moduleKey]
}
