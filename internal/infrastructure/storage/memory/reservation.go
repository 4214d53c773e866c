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
	"stokado/internal/domain/reservation"
)

// ReservationRepository is an in-memory reservation.Repository.
type ReservationRepository struct {
	mu   sync.Mutex
	rows map[id.ID]*reservation.Reservation
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{rows: make(map[id.ID]*reservation.Reservation)}
}

var _ reservation.Repository = (*ReservationRepository)(nil)

func cloneReservation(res *reservation.Reservation) *reservation.Reservation {
	cp := *res
	return &cp
}

func (r *ReservationRepository) Create(ctx context.Context, res *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rows {
		if existing.Scope.Equal(res.Scope) && existing.Reference == res.Reference {
			return reservation.ErrDuplicateReference
		}
	}
	now := time.Now().UTC()
	res.CreatedAt = now
	res.UpdatedAt = now
	r.rows[res.ID] = cloneReservation(res)
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, sc scope.Scope, reservationID id.ID) (*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.rows[reservationID]
	if !ok || !res.Scope.Equal(sc) {
		return nil, apperror.NewNotFound("reservation", reservationID)
	}
	return cloneReservation(res), nil
}

func (r *ReservationRepository) GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range r.rows {
		if res.Scope.Equal(sc) && res.Reference == ref {
			return cloneReservation(res), nil
		}
	}
	return nil, nil
}

func (r *ReservationRepository) UpdateStatus(ctx context.Context, sc scope.Scope, reservationID id.ID, from, to reservation.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.rows[reservationID]
	if !ok || !res.Scope.Equal(sc) {
		return false, apperror.NewNotFound("reservation", reservationID)
	}
	if res.Status != from {
		return false, nil
	}
	res.Status = to
	res.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *ReservationRepository) List(ctx context.Context, sc scope.Scope, filter reservation.Filter) ([]*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*reservation.Reservation
	for _, res := range r.rows {
		if !res.Scope.Equal(sc) {
			continue
		}
		if filter.ProductID != nil && res.ProductID != *filter.ProductID {
			continue
		}
		if filter.LocationID != nil && res.LocationID != *filter.LocationID {
			continue
		}
		if filter.Status != nil && res.Status != *filter.Status {
			continue
		}
		out = append(out, cloneReservation(res))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
