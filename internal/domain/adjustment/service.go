package adjustment

import (
	"context"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/tenant"
	"stokado/internal/core/types"
	"stokado/internal/domain/movement"
	"stokado/internal/domain/stock"
	"stokado/pkg/logger"
)

// Ledger posts the reconciliation movements. Satisfied by the movement
// service.
type Ledger interface {
	Post(ctx context.Context, input movement.PostInput) (*movement.Movement, error)
}

// Service runs the count session state machine.
type Service struct {
	repo        Repository
	projections stock.Repository
	locations   movement.LocationStore
	ledger      Ledger
}

func NewService(repo Repository, projections stock.Repository, locations movement.LocationStore, ledger Ledger) *Service {
	return &Service{
		repo:        repo,
		projections: projections,
		locations:   locations,
		ledger:      ledger,
	}
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txm, err := tenant.GetTxManager(ctx); err == nil {
		return txm.RunInTransaction(ctx, fn)
	}
	return fn(ctx)
}

// Create opens a draft session. Each line snapshots the current on-hand
// quantity; the posted delta is later measured against this snapshot so
// movements posted while counting do not shift the reconciliation baseline.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Adjustment, error) {
	if err := input.Validate(ctx); err != nil {
		return nil, err
	}

	loc, err := s.locations.GetByID(ctx, input.Scope, input.LocationID)
	if err != nil {
		return nil, err
	}
	if !loc.Active {
		return nil, apperror.NewInvalidInput("location is not active").
			WithDetail("locationId", input.LocationID)
	}

	a := &Adjustment{
		ID:          id.New(),
		Scope:       input.Scope,
		WarehouseID: loc.WarehouseID,
		LocationID:  loc.ID,
		State:       StateDraft,
	}
	for _, line := range input.Lines {
		p, err := s.projections.Get(ctx, stock.Key{
			Scope:       input.Scope,
			ProductID:   line.ProductID,
			LocationID:  loc.ID,
			WarehouseID: loc.WarehouseID,
			LotID:       line.LotID,
		})
		if err != nil {
			return nil, err
		}
		a.Lines = append(a.Lines, Line{
			LineID:           id.New(),
			ProductID:        line.ProductID,
			LotID:            line.LotID,
			SystemQtyAtStart: p.OnHand,
			Status:           LineStatusPending,
		})
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// StartCount opens the physical count.
func (s *Service) StartCount(ctx context.Context, sc scope.Scope, adjustmentID id.ID) (*Adjustment, error) {
	a, err := s.load(ctx, sc, adjustmentID)
	if err != nil {
		return nil, err
	}
	if a.State != StateDraft {
		return nil, apperror.NewInvalidTransition("adjustment", string(a.State), string(StateCounting))
	}
	if err := s.transition(ctx, a, StateDraft, StateCounting); err != nil {
		return nil, err
	}
	return a, nil
}

// RecordCount stores the counted quantity for one line and marks it OK or
// DIFF against the snapshot.
func (s *Service) RecordCount(ctx context.Context, sc scope.Scope, adjustmentID, lineID id.ID, counted types.Quantity) (*Adjustment, error) {
	if counted.IsNegative() {
		return nil, apperror.NewInvalidInput("counted quantity cannot be negative").
			WithDetail("value", counted.String())
	}
	a, err := s.load(ctx, sc, adjustmentID)
	if err != nil {
		return nil, err
	}
	if a.State != StateCounting {
		return nil, apperror.NewInvalidTransition("adjustment", string(a.State), string(StateCounting))
	}

	found := false
	for i := range a.Lines {
		if a.Lines[i].LineID != lineID {
			continue
		}
		found = true
		c := counted
		a.Lines[i].CountedQty = &c
		if counted == a.Lines[i].SystemQtyAtStart {
			a.Lines[i].Status = LineStatusOK
		} else {
			a.Lines[i].Status = LineStatusDiff
		}
	}
	if !found {
		return nil, apperror.NewNotFound("adjustment line", lineID)
	}
	if err := s.repo.UpdateLines(ctx, sc, adjustmentID, a.Lines); err != nil {
		return nil, err
	}
	return a, nil
}

// Review fixes the final quantities. Lines without an explicit decision
// default to their counted quantity; lines never counted keep the snapshot
// (zero delta). The session stays in counting; Post requires every line
// to carry a final quantity.
func (s *Service) Review(ctx context.Context, sc scope.Scope, adjustmentID id.ID, decisions []Decision) (*Adjustment, error) {
	a, err := s.load(ctx, sc, adjustmentID)
	if err != nil {
		return nil, err
	}
	if a.State != StateCounting {
		return nil, apperror.NewInvalidTransition("adjustment", string(a.State), string(StateCounting))
	}

	decided := make(map[id.ID]types.Quantity, len(decisions))
	for _, d := range decisions {
		if d.FinalQty.IsNegative() {
			return nil, apperror.NewInvalidInput("final quantity cannot be negative").
				WithDetail("lineId", d.LineID)
		}
		decided[d.LineID] = d.FinalQty
	}
	for i := range a.Lines {
		line := &a.Lines[i]
		var final types.Quantity
		if q, ok := decided[line.LineID]; ok {
			final = q
			delete(decided, line.LineID)
		} else if line.CountedQty != nil {
			final = *line.CountedQty
		} else {
			final = line.SystemQtyAtStart
		}
		line.FinalQty = &final
	}
	for lineID := range decided {
		return nil, apperror.NewNotFound("adjustment line", lineID)
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		return s.repo.UpdateLines(ctx, sc, adjustmentID, a.Lines)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Post reconciles the session: every line with a non-zero delta between the
// final quantity and the snapshot becomes one ADJUST movement, direction by
// the delta's sign. Every line must carry a final quantity (Review sets
// them). Posting a posted session returns it unchanged.
func (s *Service) Post(ctx context.Context, sc scope.Scope, adjustmentID id.ID) (*Adjustment, error) {
	a, err := s.load(ctx, sc, adjustmentID)
	if err != nil {
		return nil, err
	}
	if a.State == StatePosted {
		return a, nil
	}
	if a.State != StateCounting {
		return nil, apperror.NewInvalidTransition("adjustment", string(a.State), string(StatePosted))
	}
	for _, line := range a.Lines {
		if line.FinalQty == nil {
			return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "line has no final quantity").
				WithDetail("lineId", line.LineID)
		}
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		for _, line := range a.Lines {
			delta := *line.FinalQty - line.SystemQtyAtStart
			if delta.IsZero() {
				continue
			}

			input := movement.PostInput{
				Scope:     sc,
				Type:      movement.TypeAdjust,
				ProductID: line.ProductID,
				LotID:     line.LotID,
				Qty:       delta.Abs(),
				Reference: movement.ExternalReference{
					Module:   "stock",
					Entity:   "adjustment",
					EntityID: a.ID.String(),
					LineID:   line.LineID.String(),
				},
			}
			if delta.IsPositive() {
				input.ToLocationID = &a.LocationID
			} else {
				input.FromLocationID = &a.LocationID
			}
			if _, err := s.ledger.Post(ctx, input); err != nil {
				return err
			}
		}
		return s.transition(ctx, a, StateCounting, StatePosted)
	})
	if err != nil {
		return nil, err
	}
	if a.PostedAt == nil {
		now := time.Now().UTC()
		a.PostedAt = &now
	}

	logger.Info(ctx, "adjustment posted",
		"adjustmentId", a.ID,
		"locationId", a.LocationID,
		"lines", len(a.Lines),
	)
	return a, nil
}

// Cancel aborts a session before it is posted.
func (s *Service) Cancel(ctx context.Context, sc scope.Scope, adjustmentID id.ID) (*Adjustment, error) {
	a, err := s.load(ctx, sc, adjustmentID)
	if err != nil {
		return nil, err
	}
	switch a.State {
	case StateCancelled:
		return a, nil
	case StatePosted:
		return nil, apperror.NewInvalidTransition("adjustment", string(StatePosted), string(StateCancelled))
	}
	if err := s.transition(ctx, a, a.State, StateCancelled); err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID returns one session.
func (s *Service) GetByID(ctx context.Context, sc scope.Scope, adjustmentID id.ID) (*Adjustment, error) {
	return s.load(ctx, sc, adjustmentID)
}

// List returns sessions matching the filter.
func (s *Service) List(ctx context.Context, sc scope.Scope, filter Filter) ([]*Adjustment, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, sc, filter)
}

func (s *Service) load(ctx context.Context, sc scope.Scope, adjustmentID id.ID) (*Adjustment, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, sc, adjustmentID)
}

func (s *Service) transition(ctx context.Context, a *Adjustment, from, to State) error {
	flipped, err := s.repo.UpdateState(ctx, a.Scope, a.ID, from, to)
	if err != nil {
		return err
	}
	if !flipped {
		current, rerr := s.repo.GetByID(ctx, a.Scope, a.ID)
		if rerr != nil {
			return rerr
		}
		if current.State == to {
			a.State = to
			return nil
		}
		return apperror.NewInvalidTransition("adjustment", string(current.State), string(to))
	}
	a.State = to
	return nil
}
