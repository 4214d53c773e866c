package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/domain/adjustment"
)

// AdjustmentRepository is an in-memory adjustment.Repository.
type AdjustmentRepository struct {
	mu   sync.Mutex
	rows map[id.ID]*adjustment.Adjustment
}

func NewAdjustmentRepository() *AdjustmentRepository {
	return &AdjustmentRepository{rows: make(map[id.ID]*adjustment.Adjustment)}
}

var _ adjustment.Repository = (*AdjustmentRepository)(nil)

func cloneAdjustment(a *adjustment.Adjustment) *adjustment.Adjustment {
	cp := *a
	cp.Lines = make([]adjustment.Line, len(a.Lines))
	copy(cp.Lines, a.Lines)
	return &cp
}

func (r *AdjustmentRepository) Create(ctx context.Context, a *adjustment.Adjustment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.rows[a.ID] = cloneAdjustment(a)
	return nil
}

func (r *AdjustmentRepository) GetByID(ctx context.Context, sc scope.Scope, adjustmentID id.ID) (*adjustment.Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[adjustmentID]
	if !ok || !a.Scope.Equal(sc) {
		return nil, apperror.NewNotFound("adjustment", adjustmentID)
	}
	return cloneAdjustment(a), nil
}

func (r *AdjustmentRepository) UpdateState(ctx context.Context, sc scope.Scope, adjustmentID id.ID, from, to adjustment.State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[adjustmentID]
	if !ok || !a.Scope.Equal(sc) {
		return false, apperror.NewNotFound("adjustment", adjustmentID)
	}
	if a.State != from {
		return false, nil
	}
	now := time.Now().UTC()
	a.State = to
	if to == adjustment.StatePosted {
		a.PostedAt = &now
	}
	a.UpdatedAt = now
	return true, nil
}

func (r *AdjustmentRepository) UpdateLines(ctx context.Context, sc scope.Scope, adjustmentID id.ID, lines []adjustment.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[adjustmentID]
	if !ok || !a.Scope.Equal(sc) {
		return apperror.NewNotFound("adjustment", adjustmentID)
	}
	a.Lines = make([]adjustment.Line, len(lines))
	copy(a.Lines, lines)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *AdjustmentRepository) List(ctx context.Context, sc scope.Scope, filter adjustment.Filter) ([]*adjustment.Adjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*adjustment.Adjustment
	for _, a := range r.rows {
		if !a.Scope.Equal(sc) {
			continue
		}
		if filter.State != nil && a.State != *filter.State {
			continue
		}
		if filter.LocationID != nil && a.LocationID != *filter.LocationID {
			continue
		}
		out = append(out, cloneAdjustment(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
