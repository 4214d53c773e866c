package transfer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/directory"
	"stokado/internal/domain/events"
	"stokado/internal/domain/location"
	"stokado/internal/domain/movement"
	"stokado/internal/domain/reservation"
	"stokado/internal/domain/stock"
	"stokado/internal/domain/transfer"
	"stokado/internal/infrastructure/storage/memory"
)

type env struct {
	sc        scope.Scope
	stock     *memory.StockRepository
	publisher *memory.Publisher

	w1, w2     id.ID
	w1Stock    *location.Location
	w1Transit  *location.Location
	w2Stock    *location.Location
	productID  id.ID
	ledger     *movement.Service
	resService *reservation.Service
	svc        *transfer.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		sc:        scope.New("acme", id.New()),
		stock:     memory.NewStockRepository(),
		publisher: memory.NewPublisher(),
		w1:        id.New(),
		w2:        id.New(),
		productID: id.New(),
	}

	warehouses := memory.NewWarehouseDirectory()
	warehouses.Put(directory.WarehouseInfo{WarehouseID: e.w1, Code: "W1", Scope: e.sc})
	warehouses.Put(directory.WarehouseInfo{WarehouseID: e.w2, Code: "W2", Scope: e.sc})

	locRepo := memory.NewLocationRepository()
	locService := location.NewService(locRepo, e.stock)
	ctx := context.Background()
	_, err := locService.BootstrapWarehouse(ctx, e.sc, e.w1, "W1")
	require.NoError(t, err)
	_, err = locService.BootstrapWarehouse(ctx, e.sc, e.w2, "W2")
	require.NoError(t, err)

	var find = func(warehouseID id.ID, code string) *location.Location {
		loc, err := locRepo.GetByCode(ctx, e.sc, warehouseID, code)
		require.NoError(t, err)
		require.NotNil(t, loc)
		return loc
	}
	e.w1Stock = find(e.w1, "STOCK")
	e.w1Transit = find(e.w1, "TRANSIT")
	e.w2Stock = find(e.w2, "STOCK")

	movements := memory.NewMovementRepository()
	modules := memory.NewModuleDirectory()
	e.ledger = movement.NewService(movements, e.stock, locRepo, warehouses, modules, e.publisher)
	e.resService = reservation.NewService(
		memory.NewReservationRepository(),
		e.stock, locRepo, warehouses, e.ledger, e.publisher,
	)
	e.svc = transfer.NewService(
		memory.NewTransferRepository(),
		e.resService, e.ledger, locService, warehouses, e.publisher,
	)

	// Seed 10 units at W1/STOCK.
	_, err = e.ledger.Post(ctx, movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    e.productID,
		Qty:          qty(10),
		ToLocationID: &e.w1Stock.ID,
		Reference: movement.ExternalReference{
			Module: "purchasing", Entity: "receipt", EntityID: "seed", LineID: "1",
		},
	})
	require.NoError(t, err)
	return e
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func (e *env) projection(t *testing.T, loc *location.Location) *stock.Projection {
	t.Helper()
	p, err := e.stock.Get(context.Background(), stock.Key{
		Scope:       e.sc,
		ProductID:   e.productID,
		LocationID:  loc.ID,
		WarehouseID: loc.WarehouseID,
	})
	require.NoError(t, err)
	return p
}

func (e *env) create(t *testing.T, q types.Quantity) *transfer.Transfer {
	t.Helper()
	tr, err := e.svc.Create(context.Background(), transfer.CreateInput{
		Scope:                  e.sc,
		OriginWarehouseID:      e.w1,
		DestinationWarehouseID: e.w2,
		Lines:                  []transfer.LineInput{{ProductID: e.productID, Qty: q}},
	})
	require.NoError(t, err)
	return tr
}

func TestTransfer_EndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr := e.create(t, qty(5))
	assert.Equal(t, transfer.StateDraft, tr.State)

	tr, err := e.svc.Confirm(ctx, e.sc, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateConfirmed, tr.State)
	p := e.projection(t, e.w1Stock)
	assert.Equal(t, qty(10), p.OnHand)
	assert.Equal(t, qty(5), p.Reserved)

	tr, err = e.svc.Dispatch(ctx, e.sc, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateInTransit, tr.State)
	p = e.projection(t, e.w1Stock)
	assert.Equal(t, qty(5), p.OnHand)
	assert.True(t, p.Reserved.IsZero())
	assert.Equal(t, qty(5), e.projection(t, e.w1Transit).OnHand)
	assert.Len(t, e.publisher.ByType(events.TypeTransferDispatched), 1)

	tr, err = e.svc.Receive(ctx, e.sc, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateDone, tr.State)
	assert.True(t, e.projection(t, e.w1Transit).OnHand.IsZero())
	assert.Equal(t, qty(5), e.projection(t, e.w2Stock).OnHand)
	assert.Len(t, e.publisher.ByType(events.TypeTransferReceived), 1)
}

func TestCreate_RejectsSameWarehouse(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Create(context.Background(), transfer.CreateInput{
		Scope:                  e.sc,
		OriginWarehouseID:      e.w1,
		DestinationWarehouseID: e.w1,
		Lines:                  []transfer.LineInput{{ProductID: e.productID, Qty: qty(1)}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestCreate_RejectsEmptyLines(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Create(context.Background(), transfer.CreateInput{
		Scope:                  e.sc,
		OriginWarehouseID:      e.w1,
		DestinationWarehouseID: e.w2,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestConfirm_NoOpWhenAlreadyConfirmed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, qty(5))

	_, err := e.svc.Confirm(ctx, e.sc, tr.ID)
	require.NoError(t, err)
	again, err := e.svc.Confirm(ctx, e.sc, tr.ID)
	require.NoError(t, err)

	assert.Equal(t, transfer.StateConfirmed, again.State)
	assert.Equal(t, qty(5), e.projection(t, e.w1Stock).Reserved, "re-confirm must not double-reserve")
}

func TestConfirm_BlockedBeyondAvailable(t *testing.T) {
	e := newEnv(t)
	tr := e.create(t, qty(15))

	_, err := e.svc.Confirm(context.Background(), e.sc, tr.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientAvailable))
}

func TestDispatch_RequiresConfirmed(t *testing.T) {
	e := newEnv(t)
	tr := e.create(t, qty(5))

	_, err := e.svc.Dispatch(context.Background(), e.sc, tr.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestReceive_RequiresInTransit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, qty(5))
	_, err := e.svc.Confirm(ctx, e.sc, tr.ID)
	require.NoError(t, err)

	_, err = e.svc.Receive(ctx, e.sc, tr.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestCancel_FromDraft(t *testing.T) {
	e := newEnv(t)
	tr := e.create(t, qty(5))

	cancelled, err := e.svc.Cancel(context.Background(), e.sc, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateCancelled, cancelled.State)
}

func TestCancel_FromConfirmedReleasesReservations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, qty(5))
	_, err := e.svc.Confirm(ctx, e.sc, tr.ID)
	require.NoError(t, err)

	cancelled, err := e.svc.Cancel(ctx, e.sc, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateCancelled, cancelled.State)

	p := e.projection(t, e.w1Stock)
	assert.Equal(t, qty(10), p.OnHand)
	assert.True(t, p.Reserved.IsZero())
}

func TestCancel_BlockedOnceInTransit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.create(t, qty(5))
	_, err := e.svc.Confirm(ctx, e.sc, tr.ID)
	require.NoError(t, err)
	_, err = e.svc.Dispatch(ctx, e.sc, tr.ID)
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, e.sc, tr.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}
