package reservation

import (
	"context"
	"errors"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/tenant"
	"stokado/internal/core/types"
	"stokado/internal/domain/directory"
	"stokado/internal/domain/events"
	"stokado/internal/domain/movement"
	"stokado/internal/domain/stock"
	"stokado/pkg/logger"
)

// ConsumptionRecorder appends the audit OUT movement for a consumed
// reservation. Satisfied by the movement service.
type ConsumptionRecorder interface {
	RecordConsumption(ctx context.Context, input movement.PostInput) (*movement.Movement, error)
}

// Service manages the reservation lifecycle.
type Service struct {
	repo        Repository
	projections stock.Repository
	locations   movement.LocationStore
	warehouses  directory.Warehouses
	ledger      ConsumptionRecorder
	publisher   events.Publisher
}

func NewService(
	repo Repository,
	projections stock.Repository,
	locations movement.LocationStore,
	warehouses directory.Warehouses,
	ledger ConsumptionRecorder,
	publisher events.Publisher,
) *Service {
	return &Service{
		repo:        repo,
		projections: projections,
		locations:   locations,
		warehouses:  warehouses,
		ledger:      ledger,
		publisher:   publisher,
	}
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txm, err := tenant.GetTxManager(ctx); err == nil {
		return txm.RunInTransaction(ctx, fn)
	}
	return fn(ctx)
}

// Reserve places a reservation, idempotent by reference while it stays
// active. Replaying the reference of a released or consumed reservation
// is a conflict. The available guard (on-hand minus reserved covers the
// quantity) is evaluated atomically by the projection store.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (*Reservation, error) {
	if err := input.Validate(ctx); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByReference(ctx, input.Scope, input.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return activeOrConflict(existing)
	}

	loc, err := s.locations.GetByID(ctx, input.Scope, input.LocationID)
	if err != nil {
		return nil, err
	}
	if !loc.Active {
		return nil, apperror.NewInvalidInput("location is not active").
			WithDetail("locationId", input.LocationID)
	}
	info, err := s.warehouses.Resolve(ctx, loc.WarehouseID)
	if err != nil {
		return nil, err
	}
	if !info.Scope.Equal(input.Scope) {
		return nil, apperror.NewInvalidInput("warehouse belongs to another scope").
			WithDetail("warehouseId", loc.WarehouseID)
	}

	key := stock.Key{
		Scope:       input.Scope,
		ProductID:   input.ProductID,
		LocationID:  input.LocationID,
		WarehouseID: loc.WarehouseID,
		LotID:       input.LotID,
	}

	txm, txErr := tenant.GetTxManager(ctx)
	atomic := txErr == nil

	var res *Reservation
	reserve := func(ctx context.Context) error {
		if _, err := s.projections.Reserve(ctx, key, input.Qty, info.AllowNegativeStock); err != nil {
			return err
		}

		r := &Reservation{
			ID:          id.New(),
			Scope:       input.Scope,
			ProductID:   input.ProductID,
			LocationID:  input.LocationID,
			WarehouseID: loc.WarehouseID,
			LotID:       input.LotID,
			Qty:         input.Qty,
			Reference:   input.Reference,
			Status:      StatusActive,
		}
		if err := s.repo.Create(ctx, r); err != nil {
			if !atomic {
				// No surrounding transaction to roll the reserved
				// counter back with; compensate in place.
				if _, cerr := s.projections.ReleaseReserved(ctx, key, input.Qty); cerr != nil {
					logger.Error(ctx, "reserve compensation failed",
						"reference", input.Reference.String(),
						"error", cerr,
					)
				}
			}
			return err
		}
		res = r
		s.emit(ctx, r, events.TypeStockReserved)
		return nil
	}
	if atomic {
		err = txm.RunInTransaction(ctx, reserve)
	} else {
		err = reserve(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			// Lost the race: the winner's commit carries the reserved
			// counter, ours has been rolled back or compensated. The
			// re-read must run here; a transaction aborted by the
			// unique violation rejects further statements.
			winner, rerr := s.repo.GetByReference(ctx, input.Scope, input.Reference)
			if rerr != nil {
				return nil, rerr
			}
			if winner == nil {
				return nil, apperror.NewInternal(errors.New("duplicate reference reported but reservation not found")).
					WithDetail("reference", input.Reference.String())
			}
			return activeOrConflict(winner)
		}
		return nil, err
	}
	return res, nil
}

// activeOrConflict resolves a reference replay against the stored
// reservation: an active one is returned as-is, a released or consumed
// one is a conflict naming the terminal status.
func activeOrConflict(r *Reservation) (*Reservation, error) {
	if r.Status != StatusActive {
		return nil, apperror.NewConflict("reservation for this reference is already "+string(r.Status)).
			WithDetail("reservationId", r.ID).
			WithDetail("status", string(r.Status))
	}
	return r, nil
}

// Release returns the reserved quantity to available. Releasing an already
// released reservation is a no-op; releasing a consumed one is a conflict.
func (s *Service) Release(ctx context.Context, sc scope.Scope, reservationID id.ID) (*Reservation, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	res, err := s.repo.GetByID(ctx, sc, reservationID)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case StatusReleased:
		return res, nil
	case StatusConsumed:
		return nil, apperror.NewInvalidTransition("reservation", string(StatusConsumed), string(StatusReleased))
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		flipped, err := s.repo.UpdateStatus(ctx, sc, reservationID, StatusActive, StatusReleased)
		if err != nil {
			return err
		}
		if !flipped {
			// Lost to a concurrent release or consume; re-read and
			// settle by the terminal status.
			current, rerr := s.repo.GetByID(ctx, sc, reservationID)
			if rerr != nil {
				return rerr
			}
			if current.Status == StatusReleased {
				res = current
				return nil
			}
			return apperror.NewInvalidTransition("reservation", string(current.Status), string(StatusReleased))
		}

		if _, err := s.projections.ReleaseReserved(ctx, s.key(res), res.Qty); err != nil {
			if _, uerr := s.repo.UpdateStatus(ctx, sc, reservationID, StatusReleased, StatusActive); uerr != nil {
				logger.Error(ctx, "release status revert failed",
					"reservationId", reservationID,
					"error", uerr,
				)
			}
			return err
		}
		res.Status = StatusReleased
		s.emit(ctx, res, events.TypeStockReservationReleased)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ConsumeInput carries the optional valuation for the audit movement.
type ConsumeInput struct {
	Scope         scope.Scope
	ReservationID id.ID
	UnitCost      types.Money
}

// Consume turns the reservation into issued stock: on-hand and reserved
// drop together in one conditional write, then an audit OUT movement is
// appended without re-applying the projection effect.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (*Reservation, error) {
	if err := input.Scope.Validate(); err != nil {
		return nil, err
	}

	res, err := s.repo.GetByID(ctx, input.Scope, input.ReservationID)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case StatusConsumed:
		return res, nil
	case StatusReleased:
		return nil, apperror.NewInvalidTransition("reservation", string(StatusReleased), string(StatusConsumed))
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		flipped, err := s.repo.UpdateStatus(ctx, input.Scope, input.ReservationID, StatusActive, StatusConsumed)
		if err != nil {
			return err
		}
		if !flipped {
			current, rerr := s.repo.GetByID(ctx, input.Scope, input.ReservationID)
			if rerr != nil {
				return rerr
			}
			if current.Status == StatusConsumed {
				res = current
				return nil
			}
			return apperror.NewInvalidTransition("reservation", string(current.Status), string(StatusConsumed))
		}

		if _, err := s.projections.Consume(ctx, s.key(res), res.Qty); err != nil {
			if _, uerr := s.repo.UpdateStatus(ctx, input.Scope, input.ReservationID, StatusConsumed, StatusActive); uerr != nil {
				logger.Error(ctx, "consume status revert failed",
					"reservationId", input.ReservationID,
					"error", uerr,
				)
			}
			return err
		}
		res.Status = StatusConsumed

		if _, err := s.ledger.RecordConsumption(ctx, movement.PostInput{
			Scope:          input.Scope,
			Type:           movement.TypeOut,
			ProductID:      res.ProductID,
			LotID:          res.LotID,
			Qty:            res.Qty,
			FromLocationID: &res.LocationID,
			UnitCost:       input.UnitCost,
			Reference:      consumptionReference(res.Reference),
		}); err != nil {
			// The consume itself is committed; the audit entry can be
			// retried by reference. Log and propagate.
			logger.Error(ctx, "consumption audit movement failed",
				"reservationId", input.ReservationID,
				"error", err,
			)
			return err
		}

		s.emit(ctx, res, events.TypeStockReservationConsumed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// consumptionReference derives the audit movement reference from the
// reservation reference so it stays unique and traceable.
func consumptionReference(ref movement.ExternalReference) movement.ExternalReference {
	lineID := ref.LineID
	if lineID == "" {
		lineID = "consume"
	} else {
		lineID += "/consume"
	}
	return movement.ExternalReference{
		Module:   ref.Module,
		Entity:   ref.Entity,
		EntityID: ref.EntityID,
		LineID:   lineID,
	}
}

func (s *Service) key(res *Reservation) stock.Key {
	return stock.Key{
		Scope:       res.Scope,
		ProductID:   res.ProductID,
		LocationID:  res.LocationID,
		WarehouseID: res.WarehouseID,
		LotID:       res.LotID,
	}
}

// ReservedPayload is the body of reservation lifecycle events.
type ReservedPayload struct {
	ReservationID id.ID                      `json:"reservationId"`
	ProductID     id.ID                      `json:"productId"`
	LocationID    id.ID                      `json:"locationId"`
	LotID         *id.ID                     `json:"lotId,omitempty"`
	Qty           types.Quantity             `json:"qty"`
	Status        Status                     `json:"status"`
	Reference     movement.ExternalReference `json:"externalReference"`
}

func (s *Service) emit(ctx context.Context, res *Reservation, eventType string) {
	events.Emit(ctx, s.publisher, res.Scope, events.ModuleStock, eventType, ReservedPayload{
		ReservationID: res.ID,
		ProductID:     res.ProductID,
		LocationID:    res.LocationID,
		LotID:         res.LotID,
		Qty:           res.Qty,
		Status:        res.Status,
		Reference:     res.Reference,
	})
}

// GetByID returns one reservation.
func (s *Service) GetByID(ctx context.Context, sc scope.Scope, reservationID id.ID) (*Reservation, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, sc, reservationID)
}

// GetByReference returns the reservation carrying the reference, or nil.
func (s *Service) GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*Reservation, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByReference(ctx, sc, ref)
}

// List returns reservations matching the filter.
func (s *Service) List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Reservation, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, sc, filter)
}
