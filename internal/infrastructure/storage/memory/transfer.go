package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/domain/transfer"
)

// TransferRepository is an in-memory transfer.Repository.
type TransferRepository struct {
	mu   sync.Mutex
	rows map[id.ID]*transfer.Transfer
}

func NewTransferRepository() *TransferRepository {
	return &TransferRepository{rows: make(map[id.ID]*transfer.Transfer)}
}

var _ transfer.Repository = (*TransferRepository)(nil)

func cloneTransfer(t *transfer.Transfer) *transfer.Transfer {
	cp := *t
	cp.Lines = make([]transfer.Line, len(t.Lines))
	copy(cp.Lines, t.Lines)
	return &cp
}

func (r *TransferRepository) Create(ctx context.Context, t *transfer.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.rows[t.ID] = cloneTransfer(t)
	return nil
}

func (r *TransferRepository) GetByID(ctx context.Context, sc scope.Scope, transferID id.ID) (*transfer.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.rows[transferID]
	if !ok || !t.Scope.Equal(sc) {
		return nil, apperror.NewNotFound("transfer", transferID)
	}
	return cloneTransfer(t), nil
}

func (r *TransferRepository) UpdateState(ctx context.Context, sc scope.Scope, transferID id.ID, from, to transfer.State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.rows[transferID]
	if !ok || !t.Scope.Equal(sc) {
		return false, apperror.NewNotFound("transfer", transferID)
	}
	if t.State != from {
		return false, nil
	}
	t.State = to
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *TransferRepository) List(ctx context.Context, sc scope.Scope, filter transfer.Filter) ([]*transfer.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*transfer.Transfer
	for _, t := range r.rows {
		if !t.Scope.Equal(sc) {
			continue
		}
		if filter.State != nil && t.State != *filter.State {
			continue
		}
		if filter.WarehouseID != nil &&
			t.OriginWarehouseID != *filter.WarehouseID &&
			t.DestinationWarehouseID != *filter.WarehouseID {
			continue
		}
		out = append(out, cloneTransfer(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
