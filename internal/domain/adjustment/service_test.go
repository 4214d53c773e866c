package adjustment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/adjustment"
	"stokado/internal/domain/directory"
	"stokado/internal/domain/location"
	"stokado/internal/domain/movement"
	"stokado/internal/domain/stock"
	"stokado/internal/infrastructure/storage/memory"
)

type env struct {
	sc        scope.Scope
	stock     *memory.StockRepository
	movements *memory.MovementRepository

	warehouseID id.ID
	loc         *location.Location
	productID   id.ID

	ledger *movement.Service
	svc    *adjustment.Service
}

func newEnv(t *testing.T, seed types.Quantity) *env {
	t.Helper()

	e := &env{
		sc:          scope.New("acme", id.New()),
		stock:       memory.NewStockRepository(),
		movements:   memory.NewMovementRepository(),
		warehouseID: id.New(),
		productID:   id.New(),
	}

	warehouses := memory.NewWarehouseDirectory()
	warehouses.Put(directory.WarehouseInfo{
		WarehouseID: e.warehouseID,
		Code:        "WH1",
		Scope:       e.sc,
	})

	locations := memory.NewLocationRepository()
	e.loc = &location.Location{
		ID:          id.New(),
		Scope:       e.sc,
		WarehouseID: e.warehouseID,
		Name:        "STOCK",
		Code:        "STOCK",
		Level:       1,
		Path:        "WH1/STOCK",
		Type:        location.TypeInternal,
		Usage:       location.UsageStorage,
		Active:      true,
	}
	require.NoError(t, locations.Create(context.Background(), e.loc))

	e.ledger = movement.NewService(
		e.movements, e.stock, locations, warehouses,
		memory.NewModuleDirectory(), memory.NewPublisher(),
	)
	e.svc = adjustment.NewService(memory.NewAdjustmentRepository(), e.stock, locations, e.ledger)

	if seed.IsPositive() {
		_, err := e.ledger.Post(context.Background(), movement.PostInput{
			Scope:        e.sc,
			Type:         movement.TypeIn,
			ProductID:    e.productID,
			Qty:          seed,
			ToLocationID: &e.loc.ID,
			Reference: movement.ExternalReference{
				Module: "purchasing", Entity: "receipt", EntityID: "seed", LineID: "1",
			},
		})
		require.NoError(t, err)
	}
	return e
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func (e *env) onHand(t *testing.T) types.Quantity {
	t.Helper()
	p, err := e.stock.Get(context.Background(), stock.Key{
		Scope:       e.sc,
		ProductID:   e.productID,
		LocationID:  e.loc.ID,
		WarehouseID: e.warehouseID,
	})
	require.NoError(t, err)
	return p.OnHand
}

func (e *env) create(t *testing.T) *adjustment.Adjustment {
	t.Helper()
	a, err := e.svc.Create(context.Background(), adjustment.CreateInput{
		Scope:      e.sc,
		LocationID: e.loc.ID,
		Lines:      []adjustment.LineInput{{ProductID: e.productID}},
	})
	require.NoError(t, err)
	return a
}

func TestCreate_SnapshotsSystemQty(t *testing.T) {
	e := newEnv(t, qty(8))

	a := e.create(t)
	assert.Equal(t, adjustment.StateDraft, a.State)
	require.Len(t, a.Lines, 1)
	assert.Equal(t, qty(8), a.Lines[0].SystemQtyAtStart)
	assert.Equal(t, adjustment.LineStatusPending, a.Lines[0].Status)
}

func TestRecordCount_MarksOKAndDiff(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)
	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)

	a, err = e.svc.RecordCount(ctx, e.sc, a.ID, a.Lines[0].LineID, qty(8))
	require.NoError(t, err)
	assert.Equal(t, adjustment.LineStatusOK, a.Lines[0].Status)

	a, err = e.svc.RecordCount(ctx, e.sc, a.ID, a.Lines[0].LineID, qty(6))
	require.NoError(t, err)
	assert.Equal(t, adjustment.LineStatusDiff, a.Lines[0].Status)
}

func TestRecordCount_RequiresCountingState(t *testing.T) {
	e := newEnv(t, qty(8))
	a := e.create(t)

	_, err := e.svc.RecordCount(context.Background(), e.sc, a.ID, a.Lines[0].LineID, qty(8))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestPost_ZeroDeltaProducesNoMovement(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)

	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)
	_, err = e.svc.RecordCount(ctx, e.sc, a.ID, a.Lines[0].LineID, qty(8))
	require.NoError(t, err)
	_, err = e.svc.Review(ctx, e.sc, a.ID, []adjustment.Decision{{LineID: a.Lines[0].LineID, FinalQty: qty(8)}})
	require.NoError(t, err)

	posted, err := e.svc.Post(ctx, e.sc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatePosted, posted.State)
	assert.Equal(t, qty(8), e.onHand(t))

	moves, err := e.movements.List(ctx, e.sc, movement.Filter{})
	require.NoError(t, err)
	assert.Len(t, moves, 1, "only the seed movement, no zero-delta adjust entries")
}

func TestPost_NegativeDeltaLowersOnHand(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)

	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)
	_, err = e.svc.RecordCount(ctx, e.sc, a.ID, a.Lines[0].LineID, qty(5))
	require.NoError(t, err)
	_, err = e.svc.Review(ctx, e.sc, a.ID, nil)
	require.NoError(t, err)

	_, err = e.svc.Post(ctx, e.sc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(5), e.onHand(t))
}

func TestPost_PositiveDeltaRaisesOnHand(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()
	a := e.create(t)

	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)
	_, err = e.svc.RecordCount(ctx, e.sc, a.ID, a.Lines[0].LineID, qty(3))
	require.NoError(t, err)
	_, err = e.svc.Review(ctx, e.sc, a.ID, nil)
	require.NoError(t, err)

	_, err = e.svc.Post(ctx, e.sc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(3), e.onHand(t))
}

func TestPost_RepostIsNoOp(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)

	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)
	_, err = e.svc.RecordCount(ctx, e.sc, a.ID, a.Lines[0].LineID, qty(5))
	require.NoError(t, err)
	_, err = e.svc.Review(ctx, e.sc, a.ID, nil)
	require.NoError(t, err)
	_, err = e.svc.Post(ctx, e.sc, a.ID)
	require.NoError(t, err)

	again, err := e.svc.Post(ctx, e.sc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatePosted, again.State)
	assert.Equal(t, qty(5), e.onHand(t), "re-post must not re-apply the delta")
}

func TestReview_KeepsCountingState(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)
	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)

	reviewed, err := e.svc.Review(ctx, e.sc, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StateCounting, reviewed.State)
	require.NotNil(t, reviewed.Lines[0].FinalQty)
	assert.Equal(t, qty(8), *reviewed.Lines[0].FinalQty)

	stored, err := e.svc.GetByID(ctx, e.sc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StateCounting, stored.State)
}

func TestPost_RequiresFinalQuantities(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)
	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)
	_, err = e.svc.RecordCount(ctx, e.sc, a.ID, a.Lines[0].LineID, qty(5))
	require.NoError(t, err)

	_, err = e.svc.Post(ctx, e.sc, a.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeBusinessRule))
	assert.Equal(t, qty(8), e.onHand(t), "posting must not touch projections before the final quantities are settled")
}

func TestPost_StampsPostedAt(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)
	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)
	_, err = e.svc.Review(ctx, e.sc, a.ID, nil)
	require.NoError(t, err)

	posted, err := e.svc.Post(ctx, e.sc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StatePosted, posted.State)
	assert.NotNil(t, posted.PostedAt)

	stored, err := e.svc.GetByID(ctx, e.sc, a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PostedAt)
}

func TestCancel_BlockedWhenPosted(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)

	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)
	_, err = e.svc.Review(ctx, e.sc, a.ID, nil)
	require.NoError(t, err)
	_, err = e.svc.Post(ctx, e.sc, a.ID)
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, e.sc, a.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestCancel_FromCounting(t *testing.T) {
	e := newEnv(t, qty(8))
	ctx := context.Background()
	a := e.create(t)
	_, err := e.svc.StartCount(ctx, e.sc, a.ID)
	require.NoError(t, err)

	cancelled, err := e.svc.Cancel(ctx, e.sc, a.ID)
	require.NoError(t, err)
	assert.Equal(t, adjustment.StateCancelled, cancelled.State)
	assert.Equal(t, qty(8), e.onHand(t))
}
