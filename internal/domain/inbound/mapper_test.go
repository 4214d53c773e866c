package inbound_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/directory"
	"stokado/internal/domain/inbound"
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
	productID   id.ID
	locService  *location.Service
	mapper      *inbound.Mapper
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		sc:          scope.New("acme", id.New()),
		stock:       memory.NewStockRepository(),
		movements:   memory.NewMovementRepository(),
		warehouseID: id.New(),
		productID:   id.New(),
	}

	warehouses := memory.NewWarehouseDirectory()
	warehouses.Put(directory.WarehouseInfo{WarehouseID: e.warehouseID, Code: "WH1", Scope: e.sc})

	locRepo := memory.NewLocationRepository()
	e.locService = location.NewService(locRepo, e.stock)
	_, err := e.locService.BootstrapWarehouse(context.Background(), e.sc, e.warehouseID, "WH1")
	require.NoError(t, err)

	ledger := movement.NewService(
		e.movements, e.stock, locRepo, warehouses,
		memory.NewModuleDirectory(), memory.NewPublisher(),
	)
	e.mapper = inbound.NewMapper(ledger, e.locService)
	return e
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func (e *env) raw(t *testing.T, eventType string, payload map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"type":          eventType,
		"tenantId":      e.sc.TenantID,
		"legalEntityId": e.sc.LegalEntityID,
		"payload":       payload,
	})
	require.NoError(t, err)
	return raw
}

func (e *env) payload(extra map[string]any) map[string]any {
	p := map[string]any{
		"productId":   e.productID,
		"qty":         "10",
		"warehouseId": e.warehouseID,
		"reference": map[string]any{
			"module":   "purchasing",
			"entity":   "receipt",
			"entityId": "r1",
			"lineId":   "1",
		},
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func (e *env) locationByCode(t *testing.T, code string) *location.Location {
	t.Helper()
	loc, err := e.locService.Resolve(context.Background(), e.sc, e.warehouseID,
		location.Ref{Code: code}, location.ResolveDefaults{})
	require.NoError(t, err)
	return loc
}

func (e *env) onHand(t *testing.T, loc *location.Location) types.Quantity {
	t.Helper()
	p, err := e.stock.Get(context.Background(), stock.Key{
		Scope:       e.sc,
		ProductID:   e.productID,
		LocationID:  loc.ID,
		WarehouseID: e.warehouseID,
	})
	require.NoError(t, err)
	return p.OnHand
}

func TestHandle_PurchaseReceiptDefaultsToReceiving(t *testing.T) {
	e := newEnv(t)

	mv, err := e.mapper.Handle(context.Background(), e.raw(t, "purchase.receipt", e.payload(nil)))
	require.NoError(t, err)

	receiving := e.locationByCode(t, "RECEIVING")
	assert.Equal(t, movement.TypeIn, mv.Type)
	require.NotNil(t, mv.ToLocationID)
	assert.Equal(t, receiving.ID, *mv.ToLocationID)
	assert.Equal(t, qty(10), e.onHand(t, receiving))
}

func TestHandle_ExplicitCodeBeatsDefaults(t *testing.T) {
	e := newEnv(t)

	mv, err := e.mapper.Handle(context.Background(), e.raw(t, "purchase.receipt",
		e.payload(map[string]any{"toLocationCode": "STOCK"})))
	require.NoError(t, err)

	stockLoc := e.locationByCode(t, "STOCK")
	require.NotNil(t, mv.ToLocationID)
	assert.Equal(t, stockLoc.ID, *mv.ToLocationID)
}

func TestHandle_TicketClosedIssuesFromStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.mapper.Handle(ctx, e.raw(t, "purchase.receipt",
		e.payload(map[string]any{"toLocationCode": "STOCK"})))
	require.NoError(t, err)

	p := e.payload(map[string]any{"fromLocationUsage": "storage", "qty": "4"})
	p["reference"] = map[string]any{
		"module": "pos", "entity": "ticket", "entityId": "t1", "lineId": "1",
	}
	mv, err := e.mapper.Handle(ctx, e.raw(t, "ticket.closed", p))
	require.NoError(t, err)

	stockLoc := e.locationByCode(t, "STOCK")
	assert.Equal(t, movement.TypeOut, mv.Type)
	assert.Equal(t, qty(6), e.onHand(t, stockLoc))
}

func TestHandle_TransferLegsRunThroughTransit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.mapper.Handle(ctx, e.raw(t, "purchase.receipt",
		e.payload(map[string]any{"toLocationCode": "STOCK"})))
	require.NoError(t, err)

	dispatch := e.payload(map[string]any{"qty": "5"})
	dispatch["reference"] = map[string]any{
		"module": "stock", "entity": "transfer", "entityId": "tr1", "lineId": "1/dispatch",
	}
	_, err = e.mapper.Handle(ctx, e.raw(t, "transfer.dispatched", dispatch))
	require.NoError(t, err)

	transit := e.locationByCode(t, "TRANSIT")
	assert.Equal(t, qty(5), e.onHand(t, transit))

	receive := e.payload(map[string]any{"qty": "5"})
	receive["reference"] = map[string]any{
		"module": "stock", "entity": "transfer", "entityId": "tr1", "lineId": "1/receive",
	}
	_, err = e.mapper.Handle(ctx, e.raw(t, "transfer.received", receive))
	require.NoError(t, err)

	assert.True(t, e.onHand(t, transit).IsZero())
	assert.Equal(t, qty(10), e.onHand(t, e.locationByCode(t, "STOCK")))
}

func TestHandle_RedeliveryPostsNothingNew(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	raw := e.raw(t, "purchase.receipt", e.payload(nil))

	first, err := e.mapper.Handle(ctx, raw)
	require.NoError(t, err)
	second, err := e.mapper.Handle(ctx, raw)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, qty(10), e.onHand(t, e.locationByCode(t, "RECEIVING")))
}

func TestHandle_UnsupportedTypeRejected(t *testing.T) {
	e := newEnv(t)

	_, err := e.mapper.Handle(context.Background(), e.raw(t, "invoice.paid", e.payload(nil)))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestHandle_UnknownPayloadFieldRejected(t *testing.T) {
	e := newEnv(t)

	_, err := e.mapper.Handle(context.Background(), e.raw(t, "purchase.receipt",
		e.payload(map[string]any{"surprise": true})))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestHandle_MissingWarehouseRejectedWithoutExplicitID(t *testing.T) {
	e := newEnv(t)
	p := e.payload(nil)
	delete(p, "warehouseId")

	_, err := e.mapper.Handle(context.Background(), e.raw(t, "purchase.receipt", p))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestParse_RejectsMalformedQty(t *testing.T) {
	e := newEnv(t)

	for _, bad := range []any{"abc", false} {
		_, err := inbound.Parse(e.raw(t, "purchase.receipt",
			e.payload(map[string]any{"qty": bad})))
		require.Error(t, err, fmt.Sprintf("qty=%v", bad))
	}
}
