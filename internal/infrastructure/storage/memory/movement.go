package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/domain/movement"
)

// MovementRepository is an in-memory movement.Repository.
type MovementRepository struct {
	mu   sync.Mutex
	rows []*movement.Movement
}

func NewMovementRepository() *MovementRepository {
	return &MovementRepository{}
}

var _ movement.Repository = (*MovementRepository)(nil)

func cloneMovement(m *movement.Movement) *movement.Movement {
	cp := *m
	return &cp
}

func (r *MovementRepository) Create(ctx context.Context, m *movement.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rows {
		if existing.Scope.Equal(m.Scope) && existing.Reference == m.Reference {
			return movement.ErrDuplicateReference
		}
	}
	m.CreatedAt = time.Now().UTC()
	r.rows = append(r.rows, cloneMovement(m))
	return nil
}

func (r *MovementRepository) GetByID(ctx context.Context, sc scope.Scope, movementID id.ID) (*movement.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.rows {
		if m.Scope.Equal(sc) && m.ID == movementID {
			return cloneMovement(m), nil
		}
	}
	return nil, apperror.NewNotFound("movement", movementID)
}

func (r *MovementRepository) GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*movement.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.rows {
		if m.Scope.Equal(sc) && m.Reference == ref {
			return cloneMovement(m), nil
		}
	}
	return nil, nil
}

func (r *MovementRepository) List(ctx context.Context, sc scope.Scope, filter movement.Filter) ([]*movement.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*movement.Movement
	for _, m := range r.rows {
		if !m.Scope.Equal(sc) {
			continue
		}
		if filter.ProductID != nil && m.ProductID != *filter.ProductID {
			continue
		}
		if filter.Type != nil && m.Type != *filter.Type {
			continue
		}
		if filter.LocationID != nil {
			match := (m.FromLocationID != nil && *m.FromLocationID == *filter.LocationID) ||
				(m.ToLocationID != nil && *m.ToLocationID == *filter.LocationID)
			if !match {
				continue
			}
		}
		out = append(out, cloneMovement(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
