package location_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/location"
	"stokado/internal/domain/stock"
	"stokado/internal/infrastructure/storage/memory"
)

type env struct {
	sc          scope.Scope
	warehouseID id.ID
	repo        *memory.LocationRepository
	stock       *memory.StockRepository
	svc         *location.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		sc:          scope.New("acme", id.New()),
		warehouseID: id.New(),
		repo:        memory.NewLocationRepository(),
		stock:       memory.NewStockRepository(),
	}
	e.svc = location.NewService(e.repo, e.stock)
	return e
}

func (e *env) bootstrap(t *testing.T) {
	t.Helper()
	_, err := e.svc.BootstrapWarehouse(context.Background(), e.sc, e.warehouseID, "WH1")
	require.NoError(t, err)
}

func (e *env) create(t *testing.T, parent *id.ID, code string) *location.Location {
	t.Helper()
	loc, err := e.svc.Create(context.Background(), location.CreateInput{
		Scope:         e.sc,
		WarehouseID:   e.warehouseID,
		ParentID:      parent,
		Name:          code,
		Code:          code,
		Type:          location.TypeInternal,
		Usage:         location.UsageStorage,
		WarehouseCode: "WH1",
	})
	require.NoError(t, err)
	return loc
}

func TestBootstrapWarehouse_CreatesFiveCanonicalRoots(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)

	locs, err := e.repo.ListByWarehouse(context.Background(), e.sc, e.warehouseID, false)
	require.NoError(t, err)
	require.Len(t, locs, 5)

	byCode := make(map[string]*location.Location)
	for _, loc := range locs {
		byCode[loc.Code] = loc
		assert.Equal(t, 1, loc.Level)
		assert.True(t, strings.HasPrefix(loc.Path, "WH1/"))
		assert.True(t, loc.Active)
	}
	assert.Equal(t, location.UsageStorage, byCode["STOCK"].Usage)
	assert.Equal(t, location.UsageReceiving, byCode["RECEIVING"].Usage)
	assert.Equal(t, location.UsageShipping, byCode["SHIPPING"].Usage)
	assert.Equal(t, location.UsageTransit, byCode["TRANSIT"].Usage)
	assert.Equal(t, location.TypeLoss, byCode["SCRAP"].Type)
}

func TestBootstrapWarehouse_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)
	e.bootstrap(t)

	locs, err := e.repo.ListByWarehouse(context.Background(), e.sc, e.warehouseID, false)
	require.NoError(t, err)
	assert.Len(t, locs, 5, "double bootstrap must not duplicate roots")
}

func TestCreate_ChildDerivesLevelAndPath(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)

	root, err := e.repo.GetByCode(context.Background(), e.sc, e.warehouseID, "STOCK")
	require.NoError(t, err)
	child := e.create(t, &root.ID, "aisle-1")

	assert.Equal(t, 2, child.Level)
	assert.Equal(t, "WH1/STOCK/AISLE-1", child.Path)
	assert.Equal(t, "AISLE-1", child.Code)
}

func TestCreate_DuplicateCodeRejected(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)

	_, err := e.svc.Create(context.Background(), location.CreateInput{
		Scope:         e.sc,
		WarehouseID:   e.warehouseID,
		Name:          "Stock again",
		Code:          "stock",
		Type:          location.TypeInternal,
		Usage:         location.UsageStorage,
		WarehouseCode: "WH1",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicate))
}

func TestUpdate_CodeRenameRewritesSubtreePaths(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)
	ctx := context.Background()

	root, err := e.repo.GetByCode(ctx, e.sc, e.warehouseID, "STOCK")
	require.NoError(t, err)
	aisle := e.create(t, &root.ID, "A1")
	bin := e.create(t, &aisle.ID, "B1")
	other := e.create(t, &root.ID, "A2")

	newCode := "ZONE-A"
	renamed, err := e.svc.Update(ctx, e.sc, aisle.ID, location.UpdatePatch{Code: &newCode})
	require.NoError(t, err)
	assert.Equal(t, "WH1/STOCK/ZONE-A", renamed.Path)

	got, err := e.repo.GetByID(ctx, e.sc, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, "WH1/STOCK/ZONE-A/B1", got.Path)

	untouched, err := e.repo.GetByID(ctx, e.sc, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "WH1/STOCK/A2", untouched.Path)
}

// The path of every location must stay the concatenation of ancestor codes
// through any sequence of renames.
func TestUpdate_PathInvariantSurvivesRepeatedRenames(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)
	ctx := context.Background()

	root, err := e.repo.GetByCode(ctx, e.sc, e.warehouseID, "STOCK")
	require.NoError(t, err)
	a := e.create(t, &root.ID, "A")
	b := e.create(t, &a.ID, "B")
	c := e.create(t, &b.ID, "C")

	for _, code := range []string{"A1", "A2", "A3"} {
		cc := code
		_, err := e.svc.Update(ctx, e.sc, a.ID, location.UpdatePatch{Code: &cc})
		require.NoError(t, err)
	}
	mid := "B9"
	_, err = e.svc.Update(ctx, e.sc, b.ID, location.UpdatePatch{Code: &mid})
	require.NoError(t, err)

	verify := func(locID id.ID) {
		loc, err := e.repo.GetByID(ctx, e.sc, locID)
		require.NoError(t, err)
		want := loc.Code
		for parentID := loc.ParentID; parentID != nil; {
			parent, err := e.repo.GetByID(ctx, e.sc, *parentID)
			require.NoError(t, err)
			want = parent.Code + "/" + want
			parentID = parent.ParentID
		}
		assert.Equal(t, "WH1/"+want, loc.Path)
	}
	verify(a.ID)
	verify(b.ID)
	verify(c.ID)
}

func TestRemove_RefusedWhileStockRemains(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)
	ctx := context.Background()

	root, err := e.repo.GetByCode(ctx, e.sc, e.warehouseID, "STOCK")
	require.NoError(t, err)
	_, err = e.stock.AddOnHand(ctx, stock.Key{
		Scope:       e.sc,
		ProductID:   id.New(),
		LocationID:  root.ID,
		WarehouseID: e.warehouseID,
	}, types.NewQuantityFromFloat64(1))
	require.NoError(t, err)

	err = e.svc.Remove(ctx, e.sc, root.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))

	got, err := e.repo.GetByID(ctx, e.sc, root.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestRemove_SoftDeletesEmptyLocation(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)
	ctx := context.Background()

	root, err := e.repo.GetByCode(ctx, e.sc, e.warehouseID, "SCRAP")
	require.NoError(t, err)
	require.NoError(t, e.svc.Remove(ctx, e.sc, root.ID))

	got, err := e.repo.GetByID(ctx, e.sc, root.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestResolve_PrefersExplicitOverDefaults(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)
	ctx := context.Background()

	shipping, err := e.svc.Resolve(ctx, e.sc, e.warehouseID,
		location.Ref{Code: "shipping"}, location.ResolveDefaults{
			Usages: []location.Usage{location.UsageStorage},
		})
	require.NoError(t, err)
	assert.Equal(t, "SHIPPING", shipping.Code)

	byUsage, err := e.svc.Resolve(ctx, e.sc, e.warehouseID,
		location.Ref{Usage: location.UsageTransit}, location.ResolveDefaults{})
	require.NoError(t, err)
	assert.Equal(t, "TRANSIT", byUsage.Code)

	byDefault, err := e.svc.Resolve(ctx, e.sc, e.warehouseID,
		location.Ref{}, location.ResolveDefaults{Codes: []string{"STOCK"}})
	require.NoError(t, err)
	assert.Equal(t, "STOCK", byDefault.Code)
}

func TestResolve_NothingMatchesIsInvalidInput(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)

	_, err := e.svc.Resolve(context.Background(), e.sc, e.warehouseID,
		location.Ref{Code: "NOPE"}, location.ResolveDefaults{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestGetTree_NestsChildren(t *testing.T) {
	e := newEnv(t)
	e.bootstrap(t)
	ctx := context.Background()

	root, err := e.repo.GetByCode(ctx, e.sc, e.warehouseID, "STOCK")
	require.NoError(t, err)
	aisle := e.create(t, &root.ID, "A1")
	e.create(t, &aisle.ID, "B1")

	tree, err := e.svc.GetTree(ctx, e.sc, e.warehouseID)
	require.NoError(t, err)
	require.Len(t, tree, 5)

	var stockNode *location.TreeNode
	for _, node := range tree {
		if node.Location.Code == "STOCK" {
			stockNode = node
		}
	}
	require.NotNil(t, stockNode)
	require.Len(t, stockNode.Children, 1)
	assert.Equal(t, "A1", stockNode.Children[0].Location.Code)
	require.Len(t, stockNode.Children[0].Children, 1)
	assert.Equal(t, "B1", stockNode.Children[0].Children[0].Location.Code)
}
