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
	"stokado/internal/domain/transfer"
)

const (
	transferTable     = "stock_transfers"
	transferLineTable = "stock_transfer_lines"
)

var transferColumns = []string{
	"id", "legal_entity_id", "origin_warehouse_id", "destination_warehouse_id",
	"state", "created_at", "updated_at",
}

type transferRow struct {
	ID                     id.ID     `db:"id"`
	LegalEntityID          id.ID     `db:"legal_entity_id"`
	OriginWarehouseID      id.ID     `db:"origin_warehouse_id"`
	DestinationWarehouseID id.ID     `db:"destination_warehouse_id"`
	State                  string    `db:"state"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

type transferLineRow struct {
	TransferID id.ID  `db:"transfer_id"`
	LineID     id.ID  `db:"line_id"`
	ProductID  id.ID  `db:"product_id"`
	LotID      *id.ID `db:"lot_id"`
	Qty        int64  `db:"qty"`
}

func (r transferRow) toDomain(tenantID string, lines []transfer.Line) *transfer.Transfer {
	return &transfer.Transfer{
		ID:                     r.ID,
		Scope:                  scope.New(tenantID, r.LegalEntityID),
		OriginWarehouseID:      r.OriginWarehouseID,
		DestinationWarehouseID: r.DestinationWarehouseID,
		Lines:                  lines,
		State:                  transfer.State(r.State),
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

// TransferRepository is the PostgreSQL transfer.Repository. Lines are
// written once at create; documents mutate only through UpdateState.
type TransferRepository struct{}

func NewTransferRepository() *TransferRepository {
	return &TransferRepository{}
}

var _ transfer.Repository = (*TransferRepository)(nil)

func (r *TransferRepository) Create(ctx context.Context, t *transfer.Transfer) error {
	querier := MustGetTxManager(ctx).GetQuerier(ctx)

	sql, args, err := builder().
		Insert(transferTable).
		Columns(transferColumns...).
		Values(
			t.ID, t.Scope.LegalEntityID, t.OriginWarehouseID, t.DestinationWarehouseID,
			string(t.State), t.CreatedAt, t.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", transferTable, err)
	}

	lineInsert := builder().
		Insert(transferLineTable).
		Columns("transfer_id", "line_id", "product_id", "lot_id", "qty")
	for _, line := range t.Lines {
		lineInsert = lineInsert.Values(t.ID, line.LineID, line.ProductID, line.LotID, line.Qty.Int64Scaled())
	}
	sql, args, err = lineInsert.ToSql()
	if err != nil {
		return fmt.Errorf("build line insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", transferLineTable, err)
	}
	return nil
}

func (r *TransferRepository) GetByID(ctx context.Context, sc scope.Scope, transferID id.ID) (*transfer.Transfer, error) {
	sql, args, err := builder().
		Select(transferColumns...).
		From(transferTable).
		Where(squirrel.Eq{"id": transferID, "legal_entity_id": sc.LegalEntityID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	var row transferRow
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("transfer", transferID)
		}
		return nil, fmt.Errorf("select %s: %w", transferTable, err)
	}

	lines, err := r.loadLines(ctx, []id.ID{transferID})
	if err != nil {
		return nil, err
	}
	return row.toDomain(sc.TenantID, lines[transferID]), nil
}

func (r *TransferRepository) UpdateState(ctx context.Context, sc scope.Scope, transferID id.ID, from, to transfer.State) (bool, error) {
	sql, args, err := builder().
		Update(transferTable).
		Set("state", string(to)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{
			"id":              transferID,
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
		return false, fmt.Errorf("update %s state: %w", transferTable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransferRepository) List(ctx context.Context, sc scope.Scope, filter transfer.Filter) ([]*transfer.Transfer, error) {
	q := builder().
		Select(transferColumns...).
		From(transferTable).
		Where(squirrel.Eq{"legal_entity_id": sc.LegalEntityID}).
		OrderBy("created_at DESC", "id DESC")

	if filter.State != nil {
		q = q.Where(squirrel.Eq{"state": string(*filter.State)})
	}
	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"origin_warehouse_id": *filter.WarehouseID},
			squirrel.Eq{"destination_warehouse_id": *filter.WarehouseID},
		})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	var rows []transferRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", transferTable, err)
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

	out := make([]*transfer.Transfer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain(sc.TenantID, lines[row.ID]))
	}
	return out, nil
}

func (r *TransferRepository) loadLines(ctx context.Context, transferIDs []id.ID) (map[id.ID][]transfer.Line, error) {
	sql, args, err := builder().
		Select("transfer_id", "line_id", "product_id", "lot_id", "qty").
		From(transferLineTable).
		Where(squirrel.Eq{"transfer_id": transferIDs}).
		OrderBy("line_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build line select: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	var rows []transferLineRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", transferLineTable, err)
	}

	out := make(map[id.ID][]transfer.Line, len(transferIDs))
	for _, row := range rows {
		out[row.TransferID] = append(out[row.TransferID], transfer.Line{
			LineID:    row.LineID,
			ProductID: row.ProductID,
			LotID:     row.LotID,
			Qty:       types.NewQuantityFromInt64Scaled(row.Qty),
		})
	}
	return out, nil
}
