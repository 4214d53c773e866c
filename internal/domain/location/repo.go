package location

import (
	"context"
	"errors"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
)

// ErrDuplicateCode is returned by Create when the code is already taken
// within (scope, warehouse). Backed by a storage uniqueness constraint, so
// concurrent duplicate creates resolve deterministically.
var ErrDuplicateCode = errors.New("location code already exists in warehouse")

// PathUpdate is one row of a bulk path rewrite.
type PathUpdate struct {
	ID   id.ID
	Path string
}

// Repository defines persistence for the location catalog.
type Repository interface {
	Create(ctx context.Context, loc *Location) error

	// GetByID returns a not-found AppError when the id is unknown.
	GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*Location, error)

	// GetByCode returns (nil, nil) when no location carries the code.
	GetByCode(ctx context.Context, sc scope.Scope, warehouseID id.ID, code string) (*Location, error)

	// FindFirstByUsage returns the shallowest active location with the
	// given usage, or (nil, nil).
	FindFirstByUsage(ctx context.Context, sc scope.Scope, warehouseID id.ID, usage Usage) (*Location, error)

	ListByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID, activeOnly bool) ([]*Location, error)

	// ListDescendants returns every location whose path starts with
	// pathPrefix, read from one consistent snapshot.
	ListDescendants(ctx context.Context, sc scope.Scope, warehouseID id.ID, pathPrefix string) ([]*Location, error)

	Update(ctx context.Context, loc *Location) error

	// UpdatePaths applies a bulk path rewrite computed by the service.
	UpdatePaths(ctx context.Context, sc scope.Scope, updates []PathUpdate) error
}
