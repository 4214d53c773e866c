package movement

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
	"stokado/internal/domain/location"
	"stokado/internal/domain/stock"
	"stokado/pkg/logger"
)

// LocationStore is the slice of the location catalog the ledger needs.
type LocationStore interface {
	GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*location.Location, error)
}

// Service posts movements: validates shape, applies projection effects
// atomically and persists the ledger entry, idempotent by reference.
type Service struct {
	repo        Repository
	projections stock.Repository
	locations   LocationStore
	warehouses  directory.Warehouses
	modules     directory.Modules
	publisher   events.Publisher
}

func NewService(
	repo Repository,
	projections stock.Repository,
	locations LocationStore,
	warehouses directory.Warehouses,
	modules directory.Modules,
	publisher events.Publisher,
) *Service {
	return &Service{
		repo:        repo,
		projections: projections,
		locations:   locations,
		warehouses:  warehouses,
		modules:     modules,
		publisher:   publisher,
	}
}

// projectionStep is one projection effect paired with its inverse. Multi-step
// movements compensate already-applied steps in reverse order when a later
// step or the ledger persist fails.
type projectionStep struct {
	apply func(ctx context.Context) error
	undo  func(ctx context.Context) error
}

// Post records one movement. Posting the same external reference twice
// returns the already-recorded movement without touching projections.
func (s *Service) Post(ctx context.Context, input PostInput) (*Movement, error) {
	if err := input.Validate(ctx); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByReference(ctx, input.Scope, input.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Debug(ctx, "movement already posted, returning existing",
			"reference", input.Reference.String(),
			"movementId", existing.ID,
		)
		return existing, nil
	}

	from, err := s.resolveLocation(ctx, input.Scope, input.FromLocationID)
	if err != nil {
		return nil, err
	}
	to, err := s.resolveLocation(ctx, input.Scope, input.ToLocationID)
	if err != nil {
		return nil, err
	}

	steps, err := s.buildSteps(ctx, input, from, to)
	if err != nil {
		return nil, err
	}

	txm, txErr := tenant.GetTxManager(ctx)
	atomic := txErr == nil

	var mv *Movement
	post := func(ctx context.Context) error {
		applied, err := s.applySteps(ctx, steps)
		if err != nil {
			return err
		}

		m := &Movement{
			ID:             id.New(),
			Scope:          input.Scope,
			Type:           input.Type,
			ProductID:      input.ProductID,
			LotID:          input.LotID,
			Qty:            input.Qty,
			FromLocationID: input.FromLocationID,
			ToLocationID:   input.ToLocationID,
			UnitCost:       input.UnitCost,
			Reference:      input.Reference,
			Status:         StatusPosted,
		}

		if err := s.repo.Create(ctx, m); err != nil {
			if !atomic {
				// No surrounding transaction to roll the projection
				// effect back with; compensate in place.
				s.undoSteps(ctx, applied, input.Reference)
			}
			if !errors.Is(err, ErrDuplicateReference) {
				logger.Error(ctx, "movement persist failed after projection update",
					"reference", input.Reference.String(),
					"error", err,
				)
			}
			return err
		}
		mv = m
		s.emit(ctx, m)
		return nil
	}
	if atomic {
		err = txm.RunInTransaction(ctx, post)
	} else {
		err = post(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			// Lost the race: the winner's commit carries the projection
			// effect, ours has been rolled back or compensated. The
			// re-read must run here; a transaction aborted by the
			// unique violation rejects further statements.
			winner, rerr := s.repo.GetByReference(ctx, input.Scope, input.Reference)
			if rerr != nil {
				return nil, rerr
			}
			if winner == nil {
				return nil, apperror.NewInternal(errors.New("duplicate reference reported but movement not found")).
					WithDetail("reference", input.Reference.String())
			}
			return winner, nil
		}
		return nil, err
	}
	return mv, nil
}

func (s *Service) resolveLocation(ctx context.Context, sc scope.Scope, locID *id.ID) (*location.Location, error) {
	if locID == nil {
		return nil, nil
	}
	loc, err := s.locations.GetByID(ctx, sc, *locID)
	if err != nil {
		return nil, err
	}
	if !loc.Active {
		return nil, apperror.NewInvalidInput("location is not active").
			WithDetail("locationId", *locID)
	}
	return loc, nil
}

// buildSteps translates the movement type into ordered projection effects.
// Decrements run before increments so an INTERNAL move can never leave the
// destination credited without the source debited.
func (s *Service) buildSteps(ctx context.Context, input PostInput, from, to *location.Location) ([]projectionStep, error) {
	var steps []projectionStep

	if from != nil {
		allowNegative, err := s.negativePolicy(ctx, input.Scope, from.WarehouseID)
		if err != nil {
			return nil, err
		}
		key := s.stockKey(input, from)
		steps = append(steps, projectionStep{
			apply: func(ctx context.Context) error {
				_, err := s.projections.SubOnHand(ctx, key, input.Qty, allowNegative)
				return err
			},
			undo: func(ctx context.Context) error {
				_, err := s.projections.AddOnHand(ctx, key, input.Qty)
				return err
			},
		})
	}
	if to != nil {
		key := s.stockKey(input, to)
		steps = append(steps, projectionStep{
			apply: func(ctx context.Context) error {
				_, err := s.projections.AddOnHand(ctx, key, input.Qty)
				return err
			},
			undo: func(ctx context.Context) error {
				_, err := s.projections.SubOnHand(ctx, key, input.Qty, true)
				return err
			},
		})
	}
	return steps, nil
}

func (s *Service) stockKey(input PostInput, loc *location.Location) stock.Key {
	return stock.Key{
		Scope:       input.Scope,
		ProductID:   input.ProductID,
		LocationID:  loc.ID,
		WarehouseID: loc.WarehouseID,
		LotID:       input.LotID,
	}
}

func (s *Service) negativePolicy(ctx context.Context, sc scope.Scope, warehouseID id.ID) (bool, error) {
	info, err := s.warehouses.Resolve(ctx, warehouseID)
	if err != nil {
		return false, err
	}
	if !info.Scope.Equal(sc) {
		return false, apperror.NewInvalidInput("warehouse belongs to another scope").
			WithDetail("warehouseId", warehouseID)
	}
	return info.AllowNegativeStock, nil
}

func (s *Service) applySteps(ctx context.Context, steps []projectionStep) ([]projectionStep, error) {
	applied := make([]projectionStep, 0, len(steps))
	for _, step := range steps {
		if err := step.apply(ctx); err != nil {
			s.undoSteps(ctx, applied, ExternalReference{})
			return nil, err
		}
		applied = append(applied, step)
	}
	return applied, nil
}

// undoSteps compensates applied effects in reverse order. Failures are
// logged, not returned: compensation is best effort and the caller already
// has a primary error to propagate.
func (s *Service) undoSteps(ctx context.Context, applied []projectionStep, ref ExternalReference) {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := applied[i].undo(ctx); err != nil {
			logger.Error(ctx, "projection compensation failed",
				"reference", ref.String(),
				"step", i,
				"error", err,
			)
		}
	}
}

// MovedPayload is the body of stock movement events.
type MovedPayload struct {
	MovementID     id.ID             `json:"movementId"`
	Type           Type              `json:"type"`
	ProductID      id.ID             `json:"productId"`
	LotID          *id.ID            `json:"lotId,omitempty"`
	Qty            types.Quantity    `json:"qty"`
	FromLocationID *id.ID            `json:"fromLocationId,omitempty"`
	ToLocationID   *id.ID            `json:"toLocationId,omitempty"`
	UnitCost       types.Money       `json:"unitCost"`
	Reference      ExternalReference `json:"externalReference"`
}

func (s *Service) emit(ctx context.Context, m *Movement) {
	payload := MovedPayload{
		MovementID:     m.ID,
		Type:           m.Type,
		ProductID:      m.ProductID,
		LotID:          m.LotID,
		Qty:            m.Qty,
		FromLocationID: m.FromLocationID,
		ToLocationID:   m.ToLocationID,
		UnitCost:       m.UnitCost,
		Reference:      m.Reference,
	}

	eventType := events.TypeStockMoved
	if m.Type == TypeAdjust {
		eventType = events.TypeStockAdjusted
	}
	events.Emit(ctx, s.publisher, m.Scope, events.ModuleStock, eventType, payload)

	if s.modules != nil && s.modules.IsActive(ctx, m.Scope.TenantID, "accounting") {
		events.Emit(ctx, s.publisher, m.Scope, "accounting", events.TypeAccountingStockLedgerUpsert, payload)
	}
}

// GetByID returns a single ledger entry.
func (s *Service) GetByID(ctx context.Context, sc scope.Scope, movementID id.ID) (*Movement, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, sc, movementID)
}

// GetByReference returns the movement carrying the reference, or nil.
func (s *Service) GetByReference(ctx context.Context, sc scope.Scope, ref ExternalReference) (*Movement, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByReference(ctx, sc, ref)
}

// List returns ledger entries matching the filter, newest first.
func (s *Service) List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Movement, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, sc, filter)
}

// RecordConsumption appends an audit OUT movement for a consumed reservation
// without touching projections: the consume operation already moved both
// counters atomically.
func (s *Service) RecordConsumption(ctx context.Context, input PostInput) (*Movement, error) {
	if err := input.Validate(ctx); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByReference(ctx, input.Scope, input.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	m := &Movement{
		ID:             id.New(),
		Scope:          input.Scope,
		Type:           input.Type,
		ProductID:      input.ProductID,
		LotID:          input.LotID,
		Qty:            input.Qty,
		FromLocationID: input.FromLocationID,
		ToLocationID:   input.ToLocationID,
		UnitCost:       input.UnitCost,
		Reference:      input.Reference,
		Status:         StatusPosted,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return s.repo.GetByReference(ctx, input.Scope, input.Reference)
		}
		return nil, err
	}
	s.emit(ctx, m)
	return m, nil
}
