package stock

import (
	"context"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
)

// Service exposes read access to the projection. All writes go through
// the movement ledger and the reservation engine.
type Service struct {
	repo Repository
}

// NewService creates a new projection read service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the projection at one key.
func (s *Service) Get(ctx context.Context, key Key) (*Projection, error) {
	return s.repo.Get(ctx, key)
}

// List returns projections matching the filter.
func (s *Service) List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Projection, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, sc, filter)
}

// ListByWarehouse returns non-zero projections for one warehouse.
func (s *Service) ListByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID) ([]*Projection, error) {
	return s.List(ctx, sc, Filter{WarehouseID: &warehouseID, ExcludeZero: true})
}
