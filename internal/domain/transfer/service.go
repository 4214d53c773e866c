package transfer

import (
	"context"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/tenant"
	"stokado/internal/domain/directory"
	"stokado/internal/domain/events"
	"stokado/internal/domain/location"
	"stokado/internal/domain/movement"
	"stokado/internal/domain/reservation"
	"stokado/pkg/logger"
)

// Ledger posts movements. Satisfied by the movement service.
type Ledger interface {
	Post(ctx context.Context, input movement.PostInput) (*movement.Movement, error)
}

// Reservations is the slice of the reservation engine the workflow needs.
type Reservations interface {
	Reserve(ctx context.Context, input reservation.ReserveInput) (*reservation.Reservation, error)
	Release(ctx context.Context, sc scope.Scope, reservationID id.ID) (*reservation.Reservation, error)
	GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*reservation.Reservation, error)
}

// Locations resolves warehouse role locations. Satisfied by the location
// service.
type Locations interface {
	Resolve(ctx context.Context, sc scope.Scope, warehouseID id.ID, ref location.Ref, defaults location.ResolveDefaults) (*location.Location, error)
}

var (
	storageDefaults = location.ResolveDefaults{
		Usages: []location.Usage{location.UsageStorage},
		Codes:  []string{"STOCK"},
	}
	transitDefaults = location.ResolveDefaults{
		Usages: []location.Usage{location.UsageTransit},
		Codes:  []string{"TRANSIT"},
	}
)

// Service runs the transfer state machine. Every underlying reservation and
// movement call is idempotent by reference, so a crashed transition can be
// retried from the pre-transition state without double effects.
type Service struct {
	repo         Repository
	reservations Reservations
	ledger       Ledger
	locations    Locations
	warehouses   directory.Warehouses
	publisher    events.Publisher
}

func NewService(
	repo Repository,
	reservations Reservations,
	ledger Ledger,
	locations Locations,
	warehouses directory.Warehouses,
	publisher events.Publisher,
) *Service {
	return &Service{
		repo:         repo,
		reservations: reservations,
		ledger:       ledger,
		locations:    locations,
		warehouses:   warehouses,
		publisher:    publisher,
	}
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txm, err := tenant.GetTxManager(ctx); err == nil {
		return txm.RunInTransaction(ctx, fn)
	}
	return fn(ctx)
}

// Create persists a draft transfer.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Transfer, error) {
	if err := input.Validate(ctx); err != nil {
		return nil, err
	}
	for _, whID := range []id.ID{input.OriginWarehouseID, input.DestinationWarehouseID} {
		info, err := s.warehouses.Resolve(ctx, whID)
		if err != nil {
			return nil, err
		}
		if !info.Scope.Equal(input.Scope) {
			return nil, apperror.NewInvalidInput("warehouse belongs to another scope").
				WithDetail("warehouseId", whID)
		}
	}

	t := &Transfer{
		ID:                     id.New(),
		Scope:                  input.Scope,
		OriginWarehouseID:      input.OriginWarehouseID,
		DestinationWarehouseID: input.DestinationWarehouseID,
		State:                  StateDraft,
	}
	for _, line := range input.Lines {
		t.Lines = append(t.Lines, Line{
			LineID:    id.New(),
			ProductID: line.ProductID,
			LotID:     line.LotID,
			Qty:       line.Qty,
		})
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Confirm reserves every line at the origin storage location and moves the
// transfer to confirmed. Confirming an already confirmed transfer returns
// it unchanged.
func (s *Service) Confirm(ctx context.Context, sc scope.Scope, transferID id.ID) (*Transfer, error) {
	t, err := s.load(ctx, sc, transferID)
	if err != nil {
		return nil, err
	}
	if t.State == StateConfirmed {
		return t, nil
	}
	if t.State != StateDraft {
		return nil, apperror.NewInvalidTransition("transfer", string(t.State), string(StateConfirmed))
	}

	origin, err := s.locations.Resolve(ctx, sc, t.OriginWarehouseID, location.Ref{}, storageDefaults)
	if err != nil {
		return nil, err
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		for _, line := range t.Lines {
			if _, err := s.reservations.Reserve(ctx, reservation.ReserveInput{
				Scope:      sc,
				ProductID:  line.ProductID,
				LocationID: origin.ID,
				LotID:      line.LotID,
				Qty:        line.Qty,
				Reference:  s.lineReference(t, line, ""),
			}); err != nil {
				return err
			}
		}
		return s.transition(ctx, t, StateDraft, StateConfirmed)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Dispatch releases each line's reservation and posts an INTERNAL movement
// from origin storage to origin transit, then moves the transfer to
// in_transit.
func (s *Service) Dispatch(ctx context.Context, sc scope.Scope, transferID id.ID) (*Transfer, error) {
	t, err := s.load(ctx, sc, transferID)
	if err != nil {
		return nil, err
	}
	if t.State != StateConfirmed {
		return nil, apperror.NewInvalidTransition("transfer", string(t.State), string(StateInTransit))
	}

	origin, err := s.locations.Resolve(ctx, sc, t.OriginWarehouseID, location.Ref{}, storageDefaults)
	if err != nil {
		return nil, err
	}
	transit, err := s.locations.Resolve(ctx, sc, t.OriginWarehouseID, location.Ref{}, transitDefaults)
	if err != nil {
		return nil, err
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		for _, line := range t.Lines {
			// Free the held quantity first so the outgoing move does
			// not fight its own reservation for availability.
			if err := s.releaseLine(ctx, sc, t, line); err != nil {
				return err
			}
			if _, err := s.ledger.Post(ctx, movement.PostInput{
				Scope:          sc,
				Type:           movement.TypeInternal,
				ProductID:      line.ProductID,
				LotID:          line.LotID,
				Qty:            line.Qty,
				FromLocationID: &origin.ID,
				ToLocationID:   &transit.ID,
				Reference:      s.lineReference(t, line, "/dispatch"),
			}); err != nil {
				return err
			}
		}
		return s.transition(ctx, t, StateConfirmed, StateInTransit)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, t, events.TypeTransferDispatched)
	return t, nil
}

// Receive posts an INTERNAL movement per line from origin transit to the
// destination storage location and finishes the transfer.
func (s *Service) Receive(ctx context.Context, sc scope.Scope, transferID id.ID) (*Transfer, error) {
	t, err := s.load(ctx, sc, transferID)
	if err != nil {
		return nil, err
	}
	if t.State != StateInTransit {
		return nil, apperror.NewInvalidTransition("transfer", string(t.State), string(StateDone))
	}

	transit, err := s.locations.Resolve(ctx, sc, t.OriginWarehouseID, location.Ref{}, transitDefaults)
	if err != nil {
		return nil, err
	}
	destination, err := s.locations.Resolve(ctx, sc, t.DestinationWarehouseID, location.Ref{}, storageDefaults)
	if err != nil {
		return nil, err
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		for _, line := range t.Lines {
			if _, err := s.ledger.Post(ctx, movement.PostInput{
				Scope:          sc,
				Type:           movement.TypeInternal,
				ProductID:      line.ProductID,
				LotID:          line.LotID,
				Qty:            line.Qty,
				FromLocationID: &transit.ID,
				ToLocationID:   &destination.ID,
				Reference:      s.lineReference(t, line, "/receive"),
			}); err != nil {
				return err
			}
		}
		return s.transition(ctx, t, StateInTransit, StateDone)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, t, events.TypeTransferReceived)
	return t, nil
}

// Cancel aborts a transfer before goods leave the origin. From confirmed it
// releases every line's reservation first. Cancelling a cancelled transfer
// is a no-op.
func (s *Service) Cancel(ctx context.Context, sc scope.Scope, transferID id.ID) (*Transfer, error) {
	t, err := s.load(ctx, sc, transferID)
	if err != nil {
		return nil, err
	}

	switch t.State {
	case StateCancelled:
		return t, nil
	case StateDraft:
		err = s.runInTx(ctx, func(ctx context.Context) error {
			return s.transition(ctx, t, StateDraft, StateCancelled)
		})
	case StateConfirmed:
		err = s.runInTx(ctx, func(ctx context.Context) error {
			for _, line := range t.Lines {
				if err := s.releaseLine(ctx, sc, t, line); err != nil {
					return err
				}
			}
			return s.transition(ctx, t, StateConfirmed, StateCancelled)
		})
	default:
		return nil, apperror.NewInvalidTransition("transfer", string(t.State), string(StateCancelled))
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID returns one transfer.
func (s *Service) GetByID(ctx context.Context, sc scope.Scope, transferID id.ID) (*Transfer, error) {
	return s.load(ctx, sc, transferID)
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Transfer, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, sc, filter)
}

func (s *Service) load(ctx context.Context, sc scope.Scope, transferID id.ID) (*Transfer, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, sc, transferID)
}

// transition performs the conditional state flip. Losing the flip to a
// concurrent caller that reached the same target state is treated as
// already applied: the underlying calls were idempotent.
func (s *Service) transition(ctx context.Context, t *Transfer, from, to State) error {
	flipped, err := s.repo.UpdateState(ctx, t.Scope, t.ID, from, to)
	if err != nil {
		return err
	}
	if !flipped {
		current, rerr := s.repo.GetByID(ctx, t.Scope, t.ID)
		if rerr != nil {
			return rerr
		}
		if current.State == to {
			t.State = to
			return nil
		}
		return apperror.NewInvalidTransition("transfer", string(current.State), string(to))
	}
	t.State = to
	return nil
}

func (s *Service) releaseLine(ctx context.Context, sc scope.Scope, t *Transfer, line Line) error {
	res, err := s.reservations.GetByReference(ctx, sc, s.lineReference(t, line, ""))
	if err != nil {
		return err
	}
	if res == nil {
		logger.Warn(ctx, "transfer line has no reservation to release",
			"transferId", t.ID,
			"lineId", line.LineID,
		)
		return nil
	}
	_, err = s.reservations.Release(ctx, sc, res.ID)
	return err
}

func (s *Service) lineReference(t *Transfer, line Line, suffix string) movement.ExternalReference {
	return movement.ExternalReference{
		Module:   "stock",
		Entity:   "transfer",
		EntityID: t.ID.String(),
		LineID:   line.LineID.String() + suffix,
	}
}

// Payload is the body of transfer lifecycle events.
type Payload struct {
	TransferID             id.ID  `json:"transferId"`
	OriginWarehouseID      id.ID  `json:"originWarehouseId"`
	DestinationWarehouseID id.ID  `json:"destinationWarehouseId"`
	Lines                  []Line `json:"lines"`
	State                  State  `json:"state"`
}

func (s *Service) emit(ctx context.Context, t *Transfer, eventType string) {
	events.Emit(ctx, s.publisher, t.Scope, events.ModuleStock, eventType, Payload{
		TransferID:             t.ID,
		OriginWarehouseID:      t.OriginWarehouseID,
		DestinationWarehouseID: t.DestinationWarehouseID,
		Lines:                  t.Lines,
		State:                  t.State,
	})
}
