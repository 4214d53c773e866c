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
	"stokado/internal/domain/movement"
)

const movementTable = "stock_movements"

// movementRefConstraint backs the idempotency of posting. A violation means
// the reference already won a concurrent race.
const movementRefConstraint = "stock_movements_ref_key"

var movementColumns = []string{
	"id", "legal_entity_id", "type", "product_id", "lot_id", "qty",
	"from_location_id", "to_location_id", "unit_cost",
	"ref_module", "ref_entity", "ref_entity_id", "ref_line_id",
	"status", "created_at",
}

type movementRow struct {
	ID             id.ID       `db:"id"`
	LegalEntityID  id.ID       `db:"legal_entity_id"`
	Type           string      `db:"type"`
	ProductID      id.ID       `db:"product_id"`
	LotID          *id.ID      `db:"lot_id"`
	Qty            int64       `db:"qty"`
	FromLocationID *id.ID      `db:"from_location_id"`
	ToLocationID   *id.ID      `db:"to_location_id"`
	UnitCost       types.Money `db:"unit_cost"`
	RefModule      string      `db:"ref_module"`
	RefEntity      string      `db:"ref_entity"`
	RefEntityID    string      `db:"ref_entity_id"`
	RefLineID      string      `db:"ref_line_id"`
	Status         string      `db:"status"`
	CreatedAt      time.Time   `db:"created_at"`
}

func (r movementRow) toDomain(tenantID string) *movement.Movement {
	return &movement.Movement{
		ID:             r.ID,
		Scope:          scope.New(tenantID, r.LegalEntityID),
		Type:           movement.Type(r.Type),
		ProductID:      r.ProductID,
		LotID:          r.LotID,
		Qty:            types.NewQuantityFromInt64Scaled(r.Qty),
		FromLocationID: r.FromLocationID,
		ToLocationID:   r.ToLocationID,
		UnitCost:       r.UnitCost,
		Reference: movement.ExternalReference{
			Module:   r.RefModule,
			Entity:   r.RefEntity,
			EntityID: r.RefEntityID,
			LineID:   r.RefLineID,
		},
		Status:    movement.Status(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

// MovementRepository is the PostgreSQL movement.Repository.
type MovementRepository struct{}

func NewMovementRepository() *MovementRepository {
	return &MovementRepository{}
}

var _ movement.Repository = (*MovementRepository)(nil)

func (r *MovementRepository) Create(ctx context.Context, m *movement.Movement) error {
	q := builder().
		Insert(movementTable).
		Columns(movementColumns...).
		Values(
			m.ID, m.Scope.LegalEntityID, string(m.Type), m.ProductID, m.LotID,
			m.Qty.Int64Scaled(), m.FromLocationID, m.ToLocationID, m.UnitCost,
			m.Reference.Module, m.Reference.Entity, m.Reference.EntityID, m.Reference.LineID,
			string(m.Status), m.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err, movementRefConstraint) {
			return movement.ErrDuplicateReference
		}
		return fmt.Errorf("insert %s: %w", movementTable, err)
	}
	return nil
}

func (r *MovementRepository) GetByID(ctx context.Context, sc scope.Scope, movementID id.ID) (*movement.Movement, error) {
	row, err := r.getOne(ctx, sc, squirrel.Eq{"id": movementID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperror.NewNotFound("movement", movementID)
	}
	return row.toDomain(sc.TenantID), nil
}

func (r *MovementRepository) GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*movement.Movement, error) {
	row, err := r.getOne(ctx, sc, squirrel.Eq{
		"ref_module":    ref.Module,
		"ref_entity":    ref.Entity,
		"ref_entity_id": ref.EntityID,
		"ref_line_id":   ref.LineID,
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return row.toDomain(sc.TenantID), nil
}

func (r *MovementRepository) List(ctx context.Context, sc scope.Scope, filter movement.Filter) ([]*movement.Movement, error) {
	q := builder().
		Select(movementColumns...).
		From(movementTable).
		Where(squirrel.Eq{"legal_entity_id": sc.LegalEntityID}).
		OrderBy("created_at DESC", "id DESC")

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"from_location_id": *filter.LocationID},
			squirrel.Eq{"to_location_id": *filter.LocationID},
		})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"type": string(*filter.Type)})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []movementRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", movementTable, err)
	}

	out := make([]*movement.Movement, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain(sc.TenantID))
	}
	return out, nil
}

func (r *MovementRepository) getOne(ctx context.Context, sc scope.Scope, where squirrel.Eq) (*movementRow, error) {
	where["legal_entity_id"] = sc.LegalEntityID
	sql, args, err := builder().
		Select(movementColumns...).
		From(movementTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row movementRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s: %w", movementTable, err)
	}
	return &row, nil
}
