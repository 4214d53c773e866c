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
	"stokado/internal/domain/reservation"
)

const reservationTable = "stock_reservations"

const reservationRefConstraint = "stock_reservations_ref_key"

var reservationColumns = []string{
	"id", "legal_entity_id", "product_id", "location_id", "warehouse_id", "lot_id",
	"qty", "ref_module", "ref_entity", "ref_entity_id", "ref_line_id",
	"status", "created_at", "updated_at",
}

type reservationRow struct {
	ID            id.ID     `db:"id"`
	LegalEntityID id.ID     `db:"legal_entity_id"`
	ProductID     id.ID     `db:"product_id"`
	LocationID    id.ID     `db:"location_id"`
	WarehouseID   id.ID     `db:"warehouse_id"`
	LotID         *id.ID    `db:"lot_id"`
	Qty           int64     `db:"qty"`
	RefModule     string    `db:"ref_module"`
	RefEntity     string    `db:"ref_entity"`
	RefEntityID   string    `db:"ref_entity_id"`
	RefLineID     string    `db:"ref_line_id"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r reservationRow) toDomain(tenantID string) *reservation.Reservation {
	return &reservation.Reservation{
		ID:          r.ID,
		Scope:       scope.New(tenantID, r.LegalEntityID),
		ProductID:   r.ProductID,
		LocationID:  r.LocationID,
		WarehouseID: r.WarehouseID,
		LotID:       r.LotID,
		Qty:         types.NewQuantityFromInt64Scaled(r.Qty),
		Reference: movement.ExternalReference{
			Module:   r.RefModule,
			Entity:   r.RefEntity,
			EntityID: r.RefEntityID,
			LineID:   r.RefLineID,
		},
		Status:    reservation.Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ReservationRepository is the PostgreSQL reservation.Repository.
type ReservationRepository struct{}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{}
}

var _ reservation.Repository = (*ReservationRepository)(nil)

func (r *ReservationRepository) Create(ctx context.Context, res *reservation.Reservation) error {
	q := builder().
		Insert(reservationTable).
		Columns(reservationColumns...).
		Values(
			res.ID, res.Scope.LegalEntityID, res.ProductID, res.LocationID,
			res.WarehouseID, res.LotID, res.Qty.Int64Scaled(),
			res.Reference.Module, res.Reference.Entity, res.Reference.EntityID, res.Reference.LineID,
			string(res.Status), res.CreatedAt, res.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err, reservationRefConstraint) {
			return reservation.ErrDuplicateReference
		}
		return fmt.Errorf("insert %s: %w", reservationTable, err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, sc scope.Scope, reservationID id.ID) (*reservation.Reservation, error) {
	row, err := r.getOne(ctx, sc, squirrel.Eq{"id": reservationID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperror.NewNotFound("reservation", reservationID)
	}
	return row.toDomain(sc.TenantID), nil
}

func (r *ReservationRepository) GetByReference(ctx context.Context, sc scope.Scope, ref movement.ExternalReference) (*reservation.Reservation, error) {
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

func (r *ReservationRepository) UpdateStatus(ctx context.Context, sc scope.Scope, reservationID id.ID, from, to reservation.Status) (bool, error) {
	sql, args, err := builder().
		Update(reservationTable).
		Set("status", string(to)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{
			"id":              reservationID,
			"legal_entity_id": sc.LegalEntityID,
			"status":          string(from),
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build status update: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("update %s status: %w", reservationTable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReservationRepository) List(ctx context.Context, sc scope.Scope, filter reservation.Filter) ([]*reservation.Reservation, error) {
	q := builder().
		Select(reservationColumns...).
		From(reservationTable).
		Where(squirrel.Eq{"legal_entity_id": sc.LegalEntityID}).
		OrderBy("created_at DESC", "id DESC")

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []reservationRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", reservationTable, err)
	}

	out := make([]*reservation.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain(sc.TenantID))
	}
	return out, nil
}

func (r *ReservationRepository) getOne(ctx context.Context, sc scope.Scope, where squirrel.Eq) (*reservationRow, error) {
	where["legal_entity_id"] = sc.LegalEntityID
	sql, args, err := builder().
		Select(reservationColumns...).
		From(reservationTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row reservationRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s: %w", reservationTable, err)
	}
	return &row, nil
}
