package reservation_test

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
	"stokado/internal/infrastructure/storage/memory"
)

type env struct {
	sc           scope.Scope
	stock        *memory.StockRepository
	movements    *memory.MovementRepository
	reservations *memory.ReservationRepository
	locations    *memory.LocationRepository
	warehouses   *memory.WarehouseDirectory
	publisher    *memory.Publisher

	warehouseID id.ID
	loc         *location.Location
	productID   id.ID

	ledger *movement.Service
	svc    *reservation.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		sc:           scope.New("acme", id.New()),
		stock:        memory.NewStockRepository(),
		movements:    memory.NewMovementRepository(),
		reservations: memory.NewReservationRepository(),
		locations:    memory.NewLocationRepository(),
		warehouses:   memory.NewWarehouseDirectory(),
		publisher:    memory.NewPublisher(),
		warehouseID:  id.New(),
		productID:    id.New(),
	}

	e.warehouses.Put(directory.WarehouseInfo{
		WarehouseID: e.warehouseID,
		Code:        "WH1",
		Scope:       e.sc,
	})
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
	require.NoError(t, e.locations.Create(context.Background(), e.loc))

	modules := memory.NewModuleDirectory()
	e.ledger = movement.NewService(e.movements, e.stock, e.locations, e.warehouses, modules, e.publisher)
	e.svc = reservation.NewService(
		e.reservations,
		e.stock, e.locations, e.warehouses, e.ledger, e.publisher,
	)

	// Seed 10 units on hand.
	_, err := e.ledger.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    e.productID,
		Qty:          qty(10),
		ToLocationID: &e.loc.ID,
		Reference: movement.ExternalReference{
			Module: "purchasing", Entity: "receipt", EntityID: "seed", LineID: "1",
		},
	})
	require.NoError(t, err)
	return e
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func ref(entityID string) movement.ExternalReference {
	return movement.ExternalReference{
		Module:   "sales",
		Entity:   "order",
		EntityID: entityID,
		LineID:   "1",
	}
}

func (e *env) projection(t *testing.T) *stock.Projection {
	t.Helper()
	p, err := e.stock.Get(context.Background(), stock.Key{
		Scope:       e.sc,
		ProductID:   e.productID,
		LocationID:  e.loc.ID,
		WarehouseID: e.warehouseID,
	})
	require.NoError(t, err)
	return p
}

func (e *env) reserve(t *testing.T, q types.Quantity, entityID string) *reservation.Reservation {
	t.Helper()
	res, err := e.svc.Reserve(context.Background(), reservation.ReserveInput{
		Scope:      e.sc,
		ProductID:  e.productID,
		LocationID: e.loc.ID,
		Qty:        q,
		Reference:  ref(entityID),
	})
	require.NoError(t, err)
	return res
}

func TestReserve_RaisesReservedNotOnHand(t *testing.T) {
	e := newEnv(t)

	res := e.reserve(t, qty(4), "o1")
	assert.Equal(t, reservation.StatusActive, res.Status)

	p := e.projection(t)
	assert.Equal(t, qty(10), p.OnHand)
	assert.Equal(t, qty(4), p.Reserved)
	assert.Equal(t, qty(6), p.Available())
	assert.Len(t, e.publisher.ByType(events.TypeStockReserved), 1)
}

func TestReserve_SameReferenceAppliedOnce(t *testing.T) {
	e := newEnv(t)

	first := e.reserve(t, qty(4), "o1")
	second := e.reserve(t, qty(4), "o1")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, qty(4), e.projection(t).Reserved)
}

func TestReserve_ReleasedReferenceConflicts(t *testing.T) {
	e := newEnv(t)
	res := e.reserve(t, qty(4), "o1")
	_, err := e.svc.Release(context.Background(), e.sc, res.ID)
	require.NoError(t, err)

	_, err = e.svc.Reserve(context.Background(), reservation.ReserveInput{
		Scope:      e.sc,
		ProductID:  e.productID,
		LocationID: e.loc.ID,
		Qty:        qty(4),
		Reference:  ref("o1"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
	assert.True(t, e.projection(t).Reserved.IsZero(), "a conflicting replay must not reserve anything")
}

func TestReserve_ConsumedReferenceConflicts(t *testing.T) {
	e := newEnv(t)
	res := e.reserve(t, qty(4), "o1")
	_, err := e.svc.Consume(context.Background(), reservation.ConsumeInput{
		Scope: e.sc, ReservationID: res.ID,
	})
	require.NoError(t, err)

	_, err = e.svc.Reserve(context.Background(), reservation.ReserveInput{
		Scope:      e.sc,
		ProductID:  e.productID,
		LocationID: e.loc.ID,
		Qty:        qty(4),
		Reference:  ref("o1"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
	assert.True(t, e.projection(t).Reserved.IsZero())
}

// raceRepo hides the existing reservation from the first reference lookup
// so the reserve runs into the storage uniqueness constraint.
type raceRepo struct {
	reservation.Repository
	skippedFirst bool
}

func (r *raceRepo) GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*reservation.Reservation, error) {
	if !r.skippedFirst {
		r.skippedFirst = true
		return nil, nil
	}
	return r.Repository.GetByReference(ctx, sc, ref)
}

func TestReserve_DuplicateRaceLoserCompensatesAndReturnsWinner(t *testing.T) {
	e := newEnv(t)
	winner := e.reserve(t, qty(4), "o1")

	racing := reservation.NewService(
		&raceRepo{Repository: e.reservations},
		e.stock, e.locations, e.warehouses, e.ledger, e.publisher,
	)
	got, err := racing.Reserve(context.Background(), reservation.ReserveInput{
		Scope:      e.sc,
		ProductID:  e.productID,
		LocationID: e.loc.ID,
		Qty:        qty(4),
		Reference:  ref("o1"),
	})
	require.NoError(t, err)

	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, qty(4), e.projection(t).Reserved, "loser must compensate its reserved counter")
}

func TestReserve_BlockedBeyondAvailable(t *testing.T) {
	e := newEnv(t)
	e.reserve(t, qty(8), "o1")

	_, err := e.svc.Reserve(context.Background(), reservation.ReserveInput{
		Scope:      e.sc,
		ProductID:  e.productID,
		LocationID: e.loc.ID,
		Qty:        qty(3),
		Reference:  ref("o2"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientAvailable))
	assert.Equal(t, qty(8), e.projection(t).Reserved)
}

func TestRelease_ReturnsQuantityToAvailable(t *testing.T) {
	e := newEnv(t)
	res := e.reserve(t, qty(4), "o1")

	released, err := e.svc.Release(context.Background(), e.sc, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusReleased, released.Status)

	p := e.projection(t)
	assert.Equal(t, qty(10), p.OnHand)
	assert.True(t, p.Reserved.IsZero())
	assert.Len(t, e.publisher.ByType(events.TypeStockReservationReleased), 1)
}

func TestRelease_IdempotentOnReleased(t *testing.T) {
	e := newEnv(t)
	res := e.reserve(t, qty(4), "o1")

	_, err := e.svc.Release(context.Background(), e.sc, res.ID)
	require.NoError(t, err)
	again, err := e.svc.Release(context.Background(), e.sc, res.ID)
	require.NoError(t, err)

	assert.Equal(t, reservation.StatusReleased, again.Status)
	assert.True(t, e.projection(t).Reserved.IsZero(), "double release must not go negative")
}

func TestRelease_ConflictOnConsumed(t *testing.T) {
	e := newEnv(t)
	res := e.reserve(t, qty(4), "o1")

	_, err := e.svc.Consume(context.Background(), reservation.ConsumeInput{
		Scope: e.sc, ReservationID: res.ID,
	})
	require.NoError(t, err)

	_, err = e.svc.Release(context.Background(), e.sc, res.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestConsume_DropsBothCountersAndRecordsAuditMovement(t *testing.T) {
	e := newEnv(t)
	res := e.reserve(t, qty(4), "o1")

	consumed, err := e.svc.Consume(context.Background(), reservation.ConsumeInput{
		Scope: e.sc, ReservationID: res.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConsumed, consumed.Status)

	p := e.projection(t)
	assert.Equal(t, qty(6), p.OnHand)
	assert.True(t, p.Reserved.IsZero())

	audit, err := e.movements.GetByReference(context.Background(), e.sc, movement.ExternalReference{
		Module: "sales", Entity: "order", EntityID: "o1", LineID: "1/consume",
	})
	require.NoError(t, err)
	require.NotNil(t, audit)
	assert.Equal(t, movement.TypeOut, audit.Type)
	assert.Equal(t, qty(4), audit.Qty)
	assert.Equal(t, qty(6), p.OnHand, "audit movement must not re-apply the projection effect")
	assert.Len(t, e.publisher.ByType(events.TypeStockReservationConsumed), 1)
}

func TestConsume_IdempotentOnConsumed(t *testing.T) {
	e := newEnv(t)
	res := e.reserve(t, qty(4), "o1")

	_, err := e.svc.Consume(context.Background(), reservation.ConsumeInput{
		Scope: e.sc, ReservationID: res.ID,
	})
	require.NoError(t, err)
	again, err := e.svc.Consume(context.Background(), reservation.ConsumeInput{
		Scope: e.sc, ReservationID: res.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, reservation.StatusConsumed, again.Status)
	assert.Equal(t, qty(6), e.projection(t).OnHand)
}

func TestLifecycle_ReserveConsumePartOfStock(t *testing.T) {
	e := newEnv(t)

	// 10 on hand, reserve 4, consume the reservation: 6 on hand, 0
	// reserved, 6 available.
	res := e.reserve(t, qty(4), "o1")
	_, err := e.svc.Consume(context.Background(), reservation.ConsumeInput{
		Scope: e.sc, ReservationID: res.ID,
	})
	require.NoError(t, err)

	p := e.projection(t)
	assert.Equal(t, qty(6), p.OnHand)
	assert.True(t, p.Reserved.IsZero())
	assert.Equal(t, qty(6), p.Available())
}

func TestList_FiltersByStatus(t *testing.T) {
	e := newEnv(t)
	a := e.reserve(t, qty(2), "o1")
	e.reserve(t, qty(3), "o2")
	_, err := e.svc.Release(context.Background(), e.sc, a.ID)
	require.NoError(t, err)

	active := reservation.StatusActive
	out, err := e.svc.List(context.Background(), e.sc, reservation.Filter{Status: &active})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, qty(3), out[0].Qty)
}
