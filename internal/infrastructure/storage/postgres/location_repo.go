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
	"stokado/internal/domain/location"
)

const locationTable = "stock_locations"

var locationColumns = []string{
	"id", "legal_entity_id", "warehouse_id", "parent_location_id",
	"name", "code", "level", "path", "type", "usage", "active",
	"created_at", "updated_at",
}

// locationRow is the flat table shape; tenant isolation is physical, so
// only the legal entity appears in rows.
type locationRow struct {
	ID            id.ID     `db:"id"`
	LegalEntityID id.ID     `db:"legal_entity_id"`
	WarehouseID   id.ID     `db:"warehouse_id"`
	ParentID      *id.ID    `db:"parent_location_id"`
	Name          string    `db:"name"`
	Code          string    `db:"code"`
	Level         int       `db:"level"`
	Path          string    `db:"path"`
	Type          string    `db:"type"`
	Usage         string    `db:"usage"`
	Active        bool      `db:"active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r locationRow) toDomain(tenantID string) *location.Location {
	return &location.Location{
		ID:          r.ID,
		Scope:       scope.New(tenantID, r.LegalEntityID),
		WarehouseID: r.WarehouseID,
		ParentID:    r.ParentID,
		Name:        r.Name,
		Code:        r.Code,
		Level:       r.Level,
		Path:        r.Path,
		Type:        location.Type(r.Type),
		Usage:       location.Usage(r.Usage),
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// LocationRepository is the PostgreSQL location.Repository.
type LocationRepository struct{}

func NewLocationRepository() *LocationRepository {
	return &LocationRepository{}
}

var _ location.Repository = (*LocationRepository)(nil)

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *LocationRepository) Create(ctx context.Context, loc *location.Location) error {
	q := builder().
		Insert(locationTable).
		Columns(locationColumns...).
		Values(
			loc.ID, loc.Scope.LegalEntityID, loc.WarehouseID, loc.ParentID,
			loc.Name, loc.Code, loc.Level, loc.Path,
			string(loc.Type), string(loc.Usage), loc.Active,
			loc.CreatedAt, loc.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err, "") {
			return location.ErrDuplicateCode
		}
		return fmt.Errorf("insert %s: %w", locationTable, err)
	}
	return nil
}

func (r *LocationRepository) GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*location.Location, error) {
	row, err := r.getOne(ctx, sc, squirrel.Eq{"id": locationID})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apperror.NewNotFound("location", locationID)
	}
	return row.toDomain(sc.TenantID), nil
}

func (r *LocationRepository) GetByCode(ctx context.Context, sc scope.Scope, warehouseID id.ID, code string) (*location.Location, error) {
	row, err := r.getOne(ctx, sc, squirrel.Eq{"warehouse_id": warehouseID, "code": code})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return row.toDomain(sc.TenantID), nil
}

func (r *LocationRepository) FindFirstByUsage(ctx context.Context, sc scope.Scope, warehouseID id.ID, usage location.Usage) (*location.Location, error) {
	q := builder().
		Select(locationColumns...).
		From(locationTable).
		Where(squirrel.Eq{
			"legal_entity_id": sc.LegalEntityID,
			"warehouse_id":    warehouseID,
			"usage":           string(usage),
			"active":          true,
		}).
		OrderBy("level ASC", "path ASC").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row locationRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s by usage: %w", locationTable, err)
	}
	return row.toDomain(sc.TenantID), nil
}

func (r *LocationRepository) ListByWarehouse(ctx context.Context, sc scope.Scope, warehouseID id.ID, activeOnly bool) ([]*location.Location, error) {
	where := squirrel.Eq{
		"legal_entity_id": sc.LegalEntityID,
		"warehouse_id":    warehouseID,
	}
	if activeOnly {
		where["active"] = true
	}
	return r.list(ctx, sc, where)
}

func (r *LocationRepository) ListDescendants(ctx context.Context, sc scope.Scope, warehouseID id.ID, pathPrefix string) ([]*location.Location, error) {
	return r.list(ctx, sc, squirrel.And{
		squirrel.Eq{
			"legal_entity_id": sc.LegalEntityID,
			"warehouse_id":    warehouseID,
		},
		squirrel.Like{"path": pathPrefix + "%"},
	})
}

func (r *LocationRepository) Update(ctx context.Context, loc *location.Location) error {
	q := builder().
		Update(locationTable).
		SetMap(map[string]any{
			"parent_location_id": loc.ParentID,
			"name":               loc.Name,
			"code":               loc.Code,
			"level":              loc.Level,
			"path":               loc.Path,
			"type":               string(loc.Type),
			"usage":              string(loc.Usage),
			"active":             loc.Active,
			"updated_at":         loc.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": loc.ID, "legal_entity_id": loc.Scope.LegalEntityID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err, "") {
			return location.ErrDuplicateCode
		}
		return fmt.Errorf("update %s: %w", locationTable, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("location", loc.ID)
	}
	return nil
}

func (r *LocationRepository) UpdatePaths(ctx context.Context, sc scope.Scope, updates []location.PathUpdate) error {
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	now := time.Now().UTC()
	for _, u := range updates {
		sql, args, err := builder().
			Update(locationTable).
			Set("path", u.Path).
			Set("updated_at", now).
			Where(squirrel.Eq{"id": u.ID, "legal_entity_id": sc.LegalEntityID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build path update: %w", err)
		}
		tag, err := querier.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("update path: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewNotFound("location", u.ID)
		}
	}
	return nil
}

func (r *LocationRepository) getOne(ctx context.Context, sc scope.Scope, where squirrel.Eq) (*locationRow, error) {
	where["legal_entity_id"] = sc.LegalEntityID
	sql, args, err := builder().
		Select(locationColumns...).
		From(locationTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row locationRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s: %w", locationTable, err)
	}
	return &row, nil
}

func (r *LocationRepository) list(ctx context.Context, sc scope.Scope, where squirrel.Sqlizer) ([]*location.Location, error) {
	sql, args, err := builder().
		Select(locationColumns...).
		From(locationTable).
		Where(where).
		OrderBy("path ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []locationRow
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", locationTable, err)
	}

	out := make([]*location.Location, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain(sc.TenantID))
	}
	return out, nil
}
