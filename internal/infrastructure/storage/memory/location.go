package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/domain/location"
)

// LocationRepository is an in-memory location.Repository.
type LocationRepository struct {
	mu   sync.Mutex
	rows map[id.ID]*location.Location
}

func NewLocationRepository() *LocationRepository {
	return &LocationRepository{rows: make(map[id.ID]*location.Location)}
}

var _ location.Repository = (*LocationRepository)(nil)

func cloneLocation(loc *location.Location) *location.Location {
	cp := *loc
	return &cp
}

func (r *LocationRepository) Create(ctx context.Context, loc *location.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rows {
		if existing.Scope.Equal(loc.Scope) &&
			existing.WarehouseID == loc.WarehouseID &&
			existing.Code == loc.Code {
			return location.ErrDuplicateCode
		}
	}
	now := time.Now().UTC()
	loc.CreatedAt = now
	loc.UpdatedAt = now
	r.rows[loc.ID] = cloneLocation(loc)
	return nil
}

func (r *LocationRepository) GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*location.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.rows[locationID]
	if !ok || !loc.Scope.Equal(sc) {
		return nil, apperror.NewNotFound("location", locationID)
	}
	return cloneLocation(loc), nil
}

func (r *LocationRepository) GetByCode(ctx context.Context, sc scope.Scope, warehouseID id.ID, code string) (*location.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, loc := range r.rows {
		if loc.Scope.Equal(sc) && loc.WarehouseID == warehouseID && loc.Code == code {
			return cloneLocation(loc), nil
		}
	}
	return nil, nil
}

func (r *LocationRepository) FindFirstByUsage(ctx context.Context, sc scope.Scope, warehouseID id.ID, usage location.Usage) (*location.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *location.Location
	for _, loc := range r.rows {
		if !loc.Scope.Equal(sc) || loc.WarehouseID != warehouseID {
			continue
		}
		if loc.Usage != usage || !loc.Active {
			continue
		}
		if best == nil || loc.Level < best.Level ||
			(loc.Level == best.Level && loc.Path < best.Path) {
			best = loc
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneLocation(best), nil
}

func (r *LocationRepository) ListByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID, activeOnly bool) ([]*location.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*location.Location
	for _, loc := range r.rows {
		if !loc.Scope.Equal(sc) || loc.WarehouseID != warehouseID {
			continue
		}
		if activeOnly && !loc.Active {
			continue
		}
		out = append(out, cloneLocation(loc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *LocationRepository) ListDescendants(ctx context.Context, sc scope.Scope, warehouseID id.ID, pathPrefix string) ([]*location.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*location.Location
	for _, loc := range r.rows {
		if !loc.Scope.Equal(sc) || loc.WarehouseID != warehouseID {
			continue
		}
		if !strings.HasPrefix(loc.Path, pathPrefix) {
			continue
		}
		out = append(out, cloneLocation(loc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *LocationRepository) Update(ctx context.Context, loc *location.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rows[loc.ID]
	if !ok || !existing.Scope.Equal(loc.Scope) {
		return apperror.NewNotFound("location", loc.ID)
	}
	for _, other := range r.rows {
		if other.ID != loc.ID &&
			other.Scope.Equal(loc.Scope) &&
			other.WarehouseID == loc.WarehouseID &&
			other.Code == loc.Code {
			return location.ErrDuplicateCode
		}
	}
	loc.CreatedAt = existing.CreatedAt
	loc.UpdatedAt = time.Now().UTC()
	r.rows[loc.ID] = cloneLocation(loc)
	return nil
}

func (r *LocationRepository) UpdatePaths(ctx context.Context, sc scope.Scope, updates []location.PathUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, u := range updates {
		loc, ok := r.rows[u.ID]
		if !ok || !loc.Scope.Equal(sc) {
			return apperror.NewNotFound("location", u.ID)
		}
		loc.Path = u.Path
		loc.UpdatedAt = now
	}
	return nil
}
