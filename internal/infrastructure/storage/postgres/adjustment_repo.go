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
	"stokado/internal/domain/adjustment"
)

const (
	adjustmentTable     = "stock_adjustments"
	adjustmentLineTable = "stock_adjustment_lines"
)

var adjustmentColumns = []string{
	"id", "legal_entity_id", "warehouse_id", "location_id",
	"state", "posted_at", "created_at", "updated_at",
}

type adjustmentRow struct {
	ID            id.ID      `db:"id"`
	LegalEntityID id.ID      `db:"legal_entity_id"`
	WarehouseID   id.ID      `db:"warehouse_id"`
	LocationID    id.ID      `db:"location_id"`
	State         string     `db:"state"`
	PostedAt      *time.Time `db:"posted_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

type adjustmentLineRow struct {
	AdjustmentID     id.ID  `db:"adjustment_id"`
	LineID           id.ID  `db:"line_id"`
	ProductID        id.ID  `db:"product_id"`
	LotID            *id.ID `db:"lot_id"`
	SystemQtyAtStart int64  `db:"system_qty_at_start"`
	CountedQty       *int64 `db:"counted_qty"`
	FinalQty         *int64 `db:"final_qty"`
	Status           string `db:"status"`
}

func (r adjustmentLineRow) toDomain() adjustment.Line {
	line := adjustment.Line{
		LineID:           r.LineID,
		ProductID:        r.ProductID,
		LotID:            r.LotID,
		SystemQtyAtStart: types.NewQuantityFromInt64Scaled(r.SystemQtyAtStart),
		Status:           adjustment.LineStatus(r.Status),
	}
	if r.CountedQty != nil {
		q := types.NewQuantityFromInt64Scaled(*r.CountedQty)
		line.CountedQty = &q
	}
	if r.FinalQty != nil {
		q := types.NewQuantityFromInt64Scaled(*r.FinalQty)
		line.FinalQty = &q
	}
	return line
}

func (r adjustmentRow) toDomain(tenantID string, lines []adjustment.Line) *adjustment.Adjustment {
	return &adjustment.Adjustment{
		ID:          r.ID,
		Scope:       scope.New(tenantID, r.LegalEntityID),
		WarehouseID: r.WarehouseID,
		LocationID:  r.LocationID,
		Lines:       lines,
		State:       adjustment.State(r.State),
		PostedAt:    r.PostedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// AdjustmentRepository is the PostgreSQL adjustment.Repository.
type AdjustmentRepository struct{}

func NewAdjustmentRepository() *AdjustmentRepository {
	return &AdjustmentRepository{}
}

var _ adjustment.Repository = (*AdjustmentRepository)(nil)

func (r *AdjustmentRepository) Create(ctx context.Context, a *adjustment.Adjustment) error {
	querier := MustGetTxManager(ctx).GetQuerier(ctx)

	sql, args, err := builder().
		Insert(adjustmentTable).
		Columns(adjustmentColumns...).
		Values(
			a.ID, a.Scope.LegalEntityID, a.WarehouseID, a.LocationID,
			string(a.State), a.PostedAt, a.CreatedAt, a.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", adjustmentTable, err)
	}

	return r.insertLines(ctx, a.ID, a.Lines)
}

func (r *AdjustmentRepository) GetByID(ctx context.Context, sc scope.Scope, adjustmentID id.ID) (*adjustment.Adjustment, error) {
	sql, args, err := builder().
		Select(adjustmentColumns...).
		From(adjustmentTable).
		Where(squirrel.Eq{"id": adjustmentID, "legal_entity_id": sc.LegalEntityID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	var row adjustmentRow
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("adjustment", adjustmentID)
		}
		return nil, fmt.Errorf("select %s: %w", adjustmentTable, err)
	}

	lines, err := r.loadLines(ctx, []id.ID{adjustmentID})
	if err != nil {
		return nil, err
	}
	return row.toDomain(sc.TenantID, lines[adjustmentID]), nil
}

func (r *AdjustmentRepository) UpdateState(ctx context.Context, sc scope.Scope, adjustmentID id.ID, from, to adjustment.State) (bool, error) {
	q := builder().
		Update(adjustmentTable).
		Set("state", string(to)).
		Set("updated_at", time.Now().UTC())
	if to == adjustment.StatePosted {
		q = q.Set("posted_at", time.Now().UTC())
	}
	sql, args, err := q.
		Where(squirrel.Eq{
			"id":              adjustmentID,
			"legal_entity_id": sc.LegalEntityID,
			"state":           string(from),
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build state update: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("update %s state: %w", adjustmentTable, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateLines replaces the line set. Runs inside the caller's transaction
// so a session is never observed with a partial line set.
func (r *AdjustmentRepository) UpdateLines(ctx context.Context, sc scope.Scope, adjustmentID id.ID, lines []adjustment.Line) error {
	querier := MustGetTxManager(ctx).GetQuerier(ctx)

	sql, args, err := builder().
		Delete(adjustmentLineTable).
		Where(squirrel.Eq{"adjustment_id": adjustmentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build line delete: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete %s: %w", adjustmentLineTable, err)
	}

	return r.insertLines(ctx, adjustmentID, lines)
}

func (r *AdjustmentRepository) List(ctx context.Context, sc scope.Scope, filter adjustment.Filter) ([]*adjustment.Adjustment, error) {
	q := builder().
		Select(adjustmentColumns...).
		From(adjustmentTable).
		Where(squirrel.Eq{"legal_entity_id": sc.LegalEntityID}).
		OrderBy("created_at DESC", "id DESC")

	if filter.State != nil {
		q = q.Where(squirrel.Eq{"state": string(*filter.State)})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	var rows []adjustmentRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", adjustmentTable, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]id.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*adjustment.Adjustment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain(sc.TenantID, lines[row.ID]))
	}
	return out, nil
}

func (r *AdjustmentRepository) insertLines(ctx context.Context, adjustmentID id.ID, lines []adjustment.Line) error {
	if len(lines) == 0 {
		return nil
	}

	q := builder().
		Insert(adjustmentLineTable).
		Columns("adjustment_id", "line_id", "product_id", "lot_id",
			"system_qty_at_start", "counted_qty", "final_qty", "status")
	for _, line := range lines {
		q = q.Values(
			adjustmentID, line.LineID, line.ProductID, line.LotID,
			line.SystemQtyAtStart.Int64Scaled(),
			scaledOrNil(line.CountedQty), scaledOrNil(line.FinalQty),
			string(line.Status),
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build line insert: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", adjustmentLineTable, err)
	}
	return nil
}

func (r *AdjustmentRepository) loadLines(ctx context.Context, adjustmentIDs []id.ID) (map[id.ID][]adjustment.Line, error) {
	sql, args, err := builder().
		Select("adjustment_id", "line_id", "product_id", "lot_id",
			"system_qty_at_start", "counted_qty", "final_qty", "status").
		From(adjustmentLineTable).
		Where(squirrel.Eq{"adjustment_id": adjustmentIDs}).
		OrderBy("line_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build line select: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	var rows []adjustmentLineRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", adjustmentLineTable, err)
	}

	out := make(map[id.ID][]adjustment.Line, len(adjustmentIDs))
	for _, row := range rows {
		out[row.AdjustmentID] = append(out[row.AdjustmentID], row.toDomain())
	}
	return out, nil
}

func scaledOrNil(q *types.Quantity) *int64 {
	if q == nil {
		return nil
	}
	v := q.Int64Scaled()
	return &v
}
