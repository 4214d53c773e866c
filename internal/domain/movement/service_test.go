package movement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/tenant"
	"stokado/internal/core/types"
	"stokado/internal/domain/directory"
	"stokado/internal/domain/events"
	"stokado/internal/domain/location"
	"stokado/internal/domain/movement"
	"stokado/internal/domain/stock"
	"stokado/internal/infrastructure/storage/memory"
)

type env struct {
	sc        scope.Scope
	stock     *memory.StockRepository
	locations *memory.LocationRepository
	movements *memory.MovementRepository
	publisher *memory.Publisher
	modules   *memory.ModuleDirectory

	warehouseID id.ID
	stockLoc    *location.Location
	shipLoc     *location.Location

	svc *movement.Service
}

func newEnv(t *testing.T, allowNegative bool) *env {
	t.Helper()

	e := &env{
		sc:          scope.New("acme", id.New()),
		stock:       memory.NewStockRepository(),
		locations:   memory.NewLocationRepository(),
		movements:   memory.NewMovementRepository(),
		publisher:   memory.NewPublisher(),
		modules:     memory.NewModuleDirectory(),
		warehouseID: id.New(),
	}

	warehouses := memory.NewWarehouseDirectory()
	warehouses.Put(directory.WarehouseInfo{
		WarehouseID:        e.warehouseID,
		Code:               "WH1",
		Scope:              e.sc,
		AllowNegativeStock: allowNegative,
	})

	e.stockLoc = e.addLocation(t, "STOCK", location.UsageStorage)
	e.shipLoc = e.addLocation(t, "SHIPPING", location.UsageShipping)

	e.svc = movement.NewService(e.movements, e.stock, e.locations, warehouses, e.modules, e.publisher)
	return e
}

func (e *env) addLocation(t *testing.T, code string, usage location.Usage) *location.Location {
	t.Helper()
	loc := &location.Location{
		ID:          id.New(),
		Scope:       e.sc,
		WarehouseID: e.warehouseID,
		Name:        code,
		Code:        code,
		Level:       1,
		Path:        "WH1/" + code,
		Type:        location.TypeInternal,
		Usage:       usage,
		Active:      true,
	}
	require.NoError(t, e.locations.Create(context.Background(), loc))
	return loc
}

func ref(entity, entityID, lineID string) movement.ExternalReference {
	return movement.ExternalReference{
		Module:   "purchasing",
		Entity:   entity,
		EntityID: entityID,
		LineID:   lineID,
	}
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func (e *env) onHand(t *testing.T, loc *location.Location, productID id.ID) types.Quantity {
	t.Helper()
	p, err := e.stock.Get(context.Background(), stock.Key{
		Scope:       e.sc,
		ProductID:   productID,
		LocationID:  loc.ID,
		WarehouseID: e.warehouseID,
	})
	require.NoError(t, err)
	return p.OnHand
}

func TestPost_InIncreasesOnHand(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	mv, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(10),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)
	assert.Equal(t, movement.StatusPosted, mv.Status)
	assert.Equal(t, qty(10), e.onHand(t, e.stockLoc, productID))

	moved := e.publisher.ByType(events.TypeStockMoved)
	require.Len(t, moved, 1)
}

func TestPost_SameReferenceAppliedOnce(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()
	input := movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(7),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	}

	first, err := e.svc.Post(context.Background(), input)
	require.NoError(t, err)
	second, err := e.svc.Post(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, qty(7), e.onHand(t, e.stockLoc, productID))
	assert.Len(t, e.publisher.ByType(events.TypeStockMoved), 1)
}

func TestPost_OutBlockedBelowZero(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	_, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:          e.sc,
		Type:           movement.TypeOut,
		ProductID:      productID,
		Qty:            qty(5),
		FromLocationID: &e.stockLoc.ID,
		Reference:      ref("shipment", "s1", "l1"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))
	assert.True(t, e.onHand(t, e.stockLoc, productID).IsZero())

	mv, err := e.movements.GetByReference(context.Background(), e.sc, ref("shipment", "s1", "l1"))
	require.NoError(t, err)
	assert.Nil(t, mv, "failed posting must not leave a ledger entry")
}

func TestPost_OutAllowedWhenWarehousePermitsNegative(t *testing.T) {
	e := newEnv(t, true)
	productID := id.New()

	_, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:          e.sc,
		Type:           movement.TypeOut,
		ProductID:      productID,
		Qty:            qty(3),
		FromLocationID: &e.stockLoc.ID,
		Reference:      ref("shipment", "s1", "l1"),
	})
	require.NoError(t, err)
	assert.Equal(t, qty(-3), e.onHand(t, e.stockLoc, productID))
}

func TestPost_InternalMovesBetweenLocations(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	_, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(10),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)

	_, err = e.svc.Post(context.Background(), movement.PostInput{
		Scope:          e.sc,
		Type:           movement.TypeInternal,
		ProductID:      productID,
		Qty:            qty(4),
		FromLocationID: &e.stockLoc.ID,
		ToLocationID:   &e.shipLoc.ID,
		Reference:      ref("transfer", "t1", "l1"),
	})
	require.NoError(t, err)

	assert.Equal(t, qty(6), e.onHand(t, e.stockLoc, productID))
	assert.Equal(t, qty(4), e.onHand(t, e.shipLoc, productID))
}

// failingStock injects a failure on the destination increment.
type failingStock struct {
	stock.Repository
	failAdd bool
}

func (f *failingStock) AddOnHand(ctx context.Context, key stock.Key, q types.Quantity) (*stock.Projection, error) {
	if f.failAdd {
		return nil, errors.New("storage unavailable")
	}
	return f.Repository.AddOnHand(ctx, key, q)
}

func TestPost_InternalCompensatesSourceOnDestinationFailure(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	_, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(10),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)

	warehouses := memory.NewWarehouseDirectory()
	warehouses.Put(directory.WarehouseInfo{WarehouseID: e.warehouseID, Code: "WH1", Scope: e.sc})
	broken := movement.NewService(
		e.movements,
		&failingStock{Repository: e.stock, failAdd: true},
		e.locations, warehouses, e.modules, e.publisher,
	)

	_, err = broken.Post(context.Background(), movement.PostInput{
		Scope:          e.sc,
		Type:           movement.TypeInternal,
		ProductID:      productID,
		Qty:            qty(4),
		FromLocationID: &e.stockLoc.ID,
		ToLocationID:   &e.shipLoc.ID,
		Reference:      ref("transfer", "t1", "l1"),
	})
	require.Error(t, err)

	assert.Equal(t, qty(10), e.onHand(t, e.stockLoc, productID), "source decrement must be compensated")
	assert.True(t, e.onHand(t, e.shipLoc, productID).IsZero())
}

func TestPost_ShapeValidation(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	tests := []struct {
		name string
		typ  movement.Type
		from *id.ID
		to   *id.ID
	}{
		{"in with from", movement.TypeIn, &e.stockLoc.ID, &e.stockLoc.ID},
		{"in without to", movement.TypeIn, nil, nil},
		{"out with to", movement.TypeOut, &e.stockLoc.ID, &e.shipLoc.ID},
		{"internal missing to", movement.TypeInternal, &e.stockLoc.ID, nil},
		{"internal same location", movement.TypeInternal, &e.stockLoc.ID, &e.stockLoc.ID},
		{"adjust with both", movement.TypeAdjust, &e.stockLoc.ID, &e.shipLoc.ID},
		{"adjust with none", movement.TypeAdjust, nil, nil},
		{"scrap with to", movement.TypeScrap, nil, &e.stockLoc.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Post(context.Background(), movement.PostInput{
				Scope:          e.sc,
				Type:           tt.typ,
				ProductID:      productID,
				Qty:            qty(1),
				FromLocationID: tt.from,
				ToLocationID:   tt.to,
				Reference:      ref("x", "x1", tt.name),
			})
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
		})
	}
}

func TestPost_AdjustEmitsAdjustedEvent(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	_, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeAdjust,
		ProductID:    productID,
		Qty:          qty(2),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("adjustment", "a1", "l1"),
	})
	require.NoError(t, err)

	assert.Len(t, e.publisher.ByType(events.TypeStockAdjusted), 1)
	assert.Empty(t, e.publisher.ByType(events.TypeStockMoved))
}

func TestPost_AccountingEventWhenModuleActive(t *testing.T) {
	e := newEnv(t, false)
	e.modules.Activate(e.sc.TenantID, "accounting")
	productID := id.New()

	_, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(1),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)

	assert.Len(t, e.publisher.ByType(events.TypeAccountingStockLedgerUpsert), 1)
}

func TestPost_InactiveLocationRejected(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	e.stockLoc.Active = false
	require.NoError(t, e.locations.Update(context.Background(), e.stockLoc))

	_, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(1),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

// raceRepo hides the existing movement from the first reference lookup so
// the post runs into the storage uniqueness constraint.
type raceRepo struct {
	movement.Repository
	skippedFirst bool
}

func (r *raceRepo) GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*movement.Movement, error) {
	if !r.skippedFirst {
		r.skippedFirst = true
		return nil, nil
	}
	return r.Repository.GetByReference(ctx, sc, ref)
}

func TestPost_DuplicateRaceLoserCompensatesAndReturnsWinner(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	winner, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(5),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)

	warehouses := memory.NewWarehouseDirectory()
	warehouses.Put(directory.WarehouseInfo{WarehouseID: e.warehouseID, Code: "WH1", Scope: e.sc})
	racing := movement.NewService(
		&raceRepo{Repository: e.movements},
		e.stock, e.locations, warehouses, e.modules, e.publisher,
	)

	got, err := racing.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(5),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)

	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, qty(5), e.onHand(t, e.stockLoc, productID), "loser must compensate its projection effect")
}

// txRecorder is a tx.Manager that tracks whether the transactional closure
// is currently running.
type txRecorder struct {
	inFn bool
}

func (m *txRecorder) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.inFn = true
	defer func() { m.inFn = false }()
	return fn(ctx)
}

// txAwareRepo counts reference lookups made while the transactional closure
// is still open.
type txAwareRepo struct {
	movement.Repository
	txm          *txRecorder
	skippedFirst bool
	lookupsInTx  int
}

func (r *txAwareRepo) GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*movement.Movement, error) {
	if r.txm.inFn {
		r.lookupsInTx++
	}
	if !r.skippedFirst {
		r.skippedFirst = true
		return nil, nil
	}
	return r.Repository.GetByReference(ctx, sc, ref)
}

func TestPost_DuplicateRaceWinnerLookupWaitsForRollback(t *testing.T) {
	e := newEnv(t, false)
	productID := id.New()

	winner, err := e.svc.Post(context.Background(), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(5),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)

	warehouses := memory.NewWarehouseDirectory()
	warehouses.Put(directory.WarehouseInfo{WarehouseID: e.warehouseID, Code: "WH1", Scope: e.sc})
	txm := &txRecorder{}
	repo := &txAwareRepo{Repository: e.movements, txm: txm}
	racing := movement.NewService(repo, e.stock, e.locations, warehouses, e.modules, e.publisher)

	got, err := racing.Post(tenant.WithTxManager(context.Background(), txm), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    productID,
		Qty:          qty(5),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)

	assert.Equal(t, winner.ID, got.ID)
	assert.Zero(t, repo.lookupsInTx,
		"a transaction aborted by the unique violation cannot serve the winner lookup")
}

// txAwarePublisher counts events published while the transactional closure
// is still open.
type txAwarePublisher struct {
	*memory.Publisher
	txm           *txRecorder
	publishedInTx int
}

func (p *txAwarePublisher) Publish(ctx context.Context, sc scope.Scope, moduleKey, eventType string, payload any) error {
	if p.txm.inFn {
		p.publishedInTx++
	}
	return p.Publisher.Publish(ctx, sc, moduleKey, eventType, payload)
}

func TestPost_EmitsWithinPostingTransaction(t *testing.T) {
	e := newEnv(t, false)

	warehouses := memory.NewWarehouseDirectory()
	warehouses.Put(directory.WarehouseInfo{WarehouseID: e.warehouseID, Code: "WH1", Scope: e.sc})
	txm := &txRecorder{}
	pub := &txAwarePublisher{Publisher: memory.NewPublisher(), txm: txm}
	svc := movement.NewService(e.movements, e.stock, e.locations, warehouses, e.modules, pub)

	_, err := svc.Post(tenant.WithTxManager(context.Background(), txm), movement.PostInput{
		Scope:        e.sc,
		Type:         movement.TypeIn,
		ProductID:    id.New(),
		Qty:          qty(5),
		ToLocationID: &e.stockLoc.ID,
		Reference:    ref("receipt", "r1", "l1"),
	})
	require.NoError(t, err)

	require.Len(t, pub.ByType(events.TypeStockMoved), 1)
	assert.Equal(t, 1, pub.publishedInTx,
		"the movement event must share the posting transaction")
}
