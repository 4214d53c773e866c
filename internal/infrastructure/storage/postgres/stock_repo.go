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
	"stokado/internal/core/types"
	"stokado/internal/domain/stock"
)

const stockTable = "stock_projections"

var stockColumns = []string{
	"legal_entity_id", "product_id", "location_id", "warehouse_id", "lot_id",
	"on_hand", "reserved", "version", "updated_at",
}

// projectionRow stores quantities as scaled BIGINT so the guarded
// conditional updates are exact integer arithmetic. A nil lot is stored as
// the zero UUID so it can participate in the primary key.
type projectionRow struct {
	LegalEntityID id.ID     `db:"legal_entity_id"`
	ProductID     id.ID     `db:"product_id"`
	LocationID    id.ID     `db:"location_id"`
	WarehouseID   id.ID     `db:"warehouse_id"`
	LotID         id.ID     `db:"lot_id"`
	OnHand        int64     `db:"on_hand"`
	Reserved      int64     `db:"reserved"`
	Version       int64     `db:"version"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r projectionRow) toDomain(tenantID string) *stock.Projection {
	p := &stock.Projection{
		Scope:       scope.New(tenantID, r.LegalEntityID),
		ProductID:   r.ProductID,
		LocationID:  r.LocationID,
		WarehouseID: r.WarehouseID,
		OnHand:      types.NewQuantityFromInt64Scaled(r.OnHand),
		Reserved:    types.NewQuantityFromInt64Scaled(r.Reserved),
		Version:     r.Version,
		UpdatedAt:   r.UpdatedAt,
	}
	if !id.IsNil(r.LotID) {
		lot := r.LotID
		p.LotID = &lot
	}
	return p
}

func lotKey(lot *id.ID) id.ID {
	if lot == nil {
		return id.Nil()
	}
	return *lot
}

// StockRepository is the PostgreSQL stock.Repository. Every guard is a
// single conditional UPDATE; RowsAffected distinguishes a failed guard from
// an applied write, so no row locks are held across round trips.
type StockRepository struct{}

func NewStockRepository() *StockRepository {
	return &StockRepository{}
}

var _ stock.Repository = (*StockRepository)(nil)

func (r *StockRepository) Get(ctx context.Context, key stock.Key) (*stock.Projection, error) {
	row, err := r.getRow(ctx, key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &stock.Projection{
			Scope:       key.Scope,
			ProductID:   key.ProductID,
			LocationID:  key.LocationID,
			WarehouseID: key.WarehouseID,
			LotID:       key.LotID,
		}, nil
	}
	return row.toDomain(key.Scope.TenantID), nil
}

func (r *StockRepository) AddOnHand(ctx context.Context, key stock.Key, qty types.Quantity) (*stock.Projection, error) {
	q := builder().
		Insert(stockTable).
		Columns(stockColumns...).
		Values(
			key.Scope.LegalEntityID, key.ProductID, key.LocationID,
			key.WarehouseID, lotKey(key.LotID),
			qty.Int64Scaled(), 0, 1, time.Now().UTC(),
		).
		Suffix(`ON CONFLICT (legal_entity_id, product_id, location_id, lot_id)
			DO UPDATE SET
				on_hand = ` + stockTable + `.on_hand + EXCLUDED.on_hand,
				version = ` + stockTable + `.version + 1,
				updated_at = EXCLUDED.updated_at
			RETURNING ` + returningStockColumns())

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert: %w", err)
	}

	var row projectionRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		return nil, fmt.Errorf("add on-hand: %w", err)
	}
	return row.toDomain(key.Scope.TenantID), nil
}

func (r *StockRepository) SubOnHand(ctx context.Context, key stock.Key, qty types.Quantity, allowNegative bool) (*stock.Projection, error) {
	row, err := r.guardedUpdate(ctx, key,
		map[string]any{"on_hand": squirrel.Expr("on_hand - ?", qty.Int64Scaled())},
		squirrel.Expr("(? OR on_hand >= ?)", allowNegative, qty.Int64Scaled()),
	)
	if err != nil {
		return nil, err
	}
	if row == nil {
		current, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return nil, apperror.NewInsufficientStock(key.ProductID.String(), qty.Float64(), current.OnHand.Float64())
	}
	return row.toDomain(key.Scope.TenantID), nil
}

func (r *StockRepository) Reserve(ctx context.Context, key stock.Key, qty types.Quantity, allowNegative bool) (*stock.Projection, error) {
	row, err := r.guardedUpdate(ctx, key,
		map[string]any{"reserved": squirrel.Expr("reserved + ?", qty.Int64Scaled())},
		squirrel.Expr("(? OR on_hand - reserved >= ?)", allowNegative, qty.Int64Scaled()),
	)
	if err != nil {
		return nil, err
	}
	if row == nil {
		current, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return nil, apperror.NewInsufficientAvailable(key.ProductID.String(), qty.Float64(), current.Available().Float64())
	}
	return row.toDomain(key.Scope.TenantID), nil
}

func (r *StockRepository) ReleaseReserved(ctx context.Context, key stock.Key, qty types.Quantity) (*stock.Projection, error) {
	row, err := r.guardedUpdate(ctx, key,
		map[string]any{"reserved": squirrel.Expr("reserved - ?", qty.Int64Scaled())},
		squirrel.Expr("reserved >= ?", qty.Int64Scaled()),
	)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, r.reservedGuardError(ctx, key, qty, "release exceeds reserved quantity")
	}
	return row.toDomain(key.Scope.TenantID), nil
}

func (r *StockRepository) Consume(ctx context.Context, key stock.Key, qty types.Quantity) (*stock.Projection, error) {
	row, err := r.guardedUpdate(ctx, key,
		map[string]any{
			"on_hand":  squirrel.Expr("on_hand - ?", qty.Int64Scaled()),
			"reserved": squirrel.Expr("reserved - ?", qty.Int64Scaled()),
		},
		squirrel.Expr("reserved >= ?", qty.Int64Scaled()),
	)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, r.reservedGuardError(ctx, key, qty, "consume exceeds reserved quantity")
	}
	return row.toDomain(key.Scope.TenantID), nil
}

func (r *StockRepository) HasStock(ctx context.Context, sc scope.Scope, locationID id.ID) (bool, error) {
	sql, args, err := builder().
		Select("1").
		From(stockTable).
		Where(squirrel.Eq{
			"legal_entity_id": sc.LegalEntityID,
			"location_id":     locationID,
		}).
		Where(squirrel.Or{
			squirrel.NotEq{"on_hand": 0},
			squirrel.NotEq{"reserved": 0},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	var one int
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &one, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("has stock: %w", err)
	}
	return true, nil
}

func (r *StockRepository) List(ctx context.Context, sc scope.Scope, filter stock.Filter) ([]*stock.Projection, error) {
	q := builder().
		Select(stockColumns...).
		From(stockTable).
		Where(squirrel.Eq{"legal_entity_id": sc.LegalEntityID}).
		OrderBy("product_id ASC", "location_id ASC", "lot_id ASC")

	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.Or{
			squirrel.NotEq{"on_hand": 0},
			squirrel.NotEq{"reserved": 0},
		})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []projectionRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", stockTable, err)
	}

	out := make([]*stock.Projection, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain(sc.TenantID))
	}
	return out, nil
}

// guardedUpdate ensures the row exists, then applies the conditional
// update. A nil row with a nil error means the guard rejected the write.
func (r *StockRepository) guardedUpdate(ctx context.Context, key stock.Key, sets map[string]any, guard squirrel.Sqlizer) (*projectionRow, error) {
	if err := r.ensureRow(ctx, key); err != nil {
		return nil, err
	}

	q := builder().
		Update(stockTable).
		SetMap(sets).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(keyEq(key)).
		Where(guard).
		Suffix("RETURNING " + returningStockColumns())

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build guarded update: %w", err)
	}

	var row projectionRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("guarded update %s: %w", stockTable, err)
	}
	return &row, nil
}

func (r *StockRepository) ensureRow(ctx context.Context, key stock.Key) error {
	sql, args, err := builder().
		Insert(stockTable).
		Columns(stockColumns...).
		Values(
			key.Scope.LegalEntityID, key.ProductID, key.LocationID,
			key.WarehouseID, lotKey(key.LotID),
			0, 0, 0, time.Now().UTC(),
		).
		Suffix("ON CONFLICT (legal_entity_id, product_id, location_id, lot_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build ensure row: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("ensure projection row: %w", err)
	}
	return nil
}

func (r *StockRepository) getRow(ctx context.Context, key stock.Key) (*projectionRow, error) {
	sql, args, err := builder().
		Select(stockColumns...).
		From(stockTable).
		Where(keyEq(key)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row projectionRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s: %w", stockTable, err)
	}
	return &row, nil
}

func (r *StockRepository) reservedGuardError(ctx context.Context, key stock.Key, qty types.Quantity, msg string) error {
	current, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	return apperror.NewBusinessRule(apperror.CodeBusinessRule, msg).
		WithDetail("product_id", key.ProductID.String()).
		WithDetail("reserved", current.Reserved.Float64()).
		WithDetail("requested", qty.Float64())
}

func keyEq(key stock.Key) squirrel.Eq {
	return squirrel.Eq{
		"legal_entity_id": key.Scope.LegalEntityID,
		"product_id":      key.ProductID,
		"location_id":     key.LocationID,
		"lot_id":          lotKey(key.LotID),
	}
}

func returningStockColumns() string {
	return "legal_entity_id, product_id, location_id, warehouse_id, lot_id, on_hand, reserved, version, updated_at"
}
