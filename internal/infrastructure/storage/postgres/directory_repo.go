package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/tenant"
	"stokado/internal/domain/directory"
)

const warehouseTable = "dir_warehouses"

type warehouseRow struct {
	ID                 id.ID     `db:"id"`
	LegalEntityID      id.ID     `db:"legal_entity_id"`
	Code               string    `db:"code"`
	AllowNegativeStock bool      `db:"allow_negative_stock"`
	CreatedAt          time.Time `db:"created_at"`
}

// WarehouseDirectory resolves warehouses from the tenant database. The
// directory is administered outside this subsystem; the ledger only reads
// scope and policy flags from it.
type WarehouseDirectory struct{}

func NewWarehouseDirectory() *WarehouseDirectory {
	return &WarehouseDirectory{}
}

var _ directory.Warehouses = (*WarehouseDirectory)(nil)

func (d *WarehouseDirectory) Resolve(ctx context.Context, warehouseID id.ID) (*directory.WarehouseInfo, error) {
	sql, args, err := builder().
		Select("id", "legal_entity_id", "code", "allow_negative_stock", "created_at").
		From(warehouseTable).
		Where(squirrel.Eq{"id": warehouseID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row warehouseRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("warehouse", warehouseID)
		}
		return nil, fmt.Errorf("select %s: %w", warehouseTable, err)
	}

	return &directory.WarehouseInfo{
		WarehouseID:        row.ID,
		Code:               row.Code,
		Scope:              scope.New(tenant.GetTenantID(ctx), row.LegalEntityID),
		AllowNegativeStock: row.AllowNegativeStock,
	}, nil
}

// TenantModules answers module activation from the tenant record carried in
// the request context. No database round trip.
type TenantModules struct{}

func NewTenantModules() *TenantModules {
	return &TenantModules{}
}

var _ directory.Modules = (*TenantModules)(nil)

func (TenantModules) IsActive(ctx context.Context, tenantID, moduleKey string) bool {
	t := tenant.GetTenant(ctx)
	if t == nil || t.ID != tenantID {
		return false
	}
	return t.ModuleActive(moduleKey)
}
