// Package memory provides mutex-guarded in-memory implementations of the
// domain repositories. They honor the same guard semantics as the postgres
// backend and serve service-level tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/stock"
)

type stockMapKey struct {
	tenantID      string
	legalEntityID id.ID
	productID     id.ID
	locationID    id.ID
	lotID         id.ID
}

func toStockMapKey(key stock.Key) stockMapKey {
	k := stockMapKey{
		tenantID:      key.Scope.TenantID,
		legalEntityID: key.Scope.LegalEntityID,
		productID:     key.ProductID,
		locationID:    key.LocationID,
	}
	if key.LotID != nil {
		k.lotID = *key.LotID
	}
	return k
}

// StockRepository is an in-memory stock.Repository.
type StockRepository struct {
	mu   sync.Mutex
	rows map[stockMapKey]*stock.Projection
}

func NewStockRepository() *StockRepository {
	return &StockRepository{rows: make(map[stockMapKey]*stock.Projection)}
}

var _ stock.Repository = (*StockRepository)(nil)

func (r *StockRepository) get(key stock.Key) *stock.Projection {
	return r.rows[toStockMapKey(key)]
}

func (r *StockRepository) getOrCreate(key stock.Key) *stock.Projection {
	mk := toStockMapKey(key)
	p, ok := r.rows[mk]
	if !ok {
		p = &stock.Projection{
			Scope:       key.Scope,
			ProductID:   key.ProductID,
			LocationID:  key.LocationID,
			WarehouseID: key.WarehouseID,
			LotID:       key.LotID,
		}
		r.rows[mk] = p
	}
	return p
}

func clone(p *stock.Projection) *stock.Projection {
	cp := *p
	return &cp
}

func (r *StockRepository) Get(ctx context.Context, key stock.Key) (*stock.Projection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.get(key); p != nil {
		return clone(p), nil
	}
	return &stock.Projection{
		Scope:       key.Scope,
		ProductID:   key.ProductID,
		LocationID:  key.LocationID,
		WarehouseID: key.WarehouseID,
		LotID:       key.LotID,
	}, nil
}

func (r *StockRepository) AddOnHand(ctx context.Context, key stock.Key, qty types.Quantity) (*stock.Projection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(key)
	p.OnHand += qty
	touch(p)
	return clone(p), nil
}

func (r *StockRepository) SubOnHand(ctx context.Context, key stock.Key, qty types.Quantity, allowNegative bool) (*stock.Projection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(key)
	if !allowNegative && p.OnHand < qty {
		return nil, apperror.NewInsufficientStock(key.ProductID.String(), qty.Float64(), p.OnHand.Float64())
	}
	p.OnHand -= qty
	touch(p)
	return clone(p), nil
}

func (r *StockRepository) Reserve(ctx context.Context, key stock.Key, qty types.Quantity, allowNegative bool) (*stock.Projection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(key)
	if !allowNegative && p.OnHand-p.Reserved < qty {
		return nil, apperror.NewInsufficientAvailable(key.ProductID.String(), qty.Float64(), p.Available().Float64())
	}
	p.Reserved += qty
	touch(p)
	return clone(p), nil
}

func (r *StockRepository) ReleaseReserved(ctx context.Context, key stock.Key, qty types.Quantity) (*stock.Projection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(key)
	if p.Reserved < qty {
		return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "release exceeds reserved quantity").
			WithDetail("product_id", key.ProductID.String()).
			WithDetail("reserved", p.Reserved.Float64()).
			WithDetail("requested", qty.Float64())
	}
	p.Reserved -= qty
	touch(p)
	return clone(p), nil
}

func (r *StockRepository) Consume(ctx context.Context, key stock.Key, qty types.Quantity) (*stock.Projection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.getOrCreate(key)
	if p.Reserved < qty {
		return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule, "consume exceeds reserved quantity").
			WithDetail("product_id", key.ProductID.String()).
			WithDetail("reserved", p.Reserved.Float64()).
			WithDetail("requested", qty.Float64())
	}
	p.OnHand -= qty
	p.Reserved -= qty
	touch(p)
	return clone(p), nil
}

func (r *StockRepository) HasStock(ctx context.Context, sc scope.Scope, locationID id.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.rows {
		if !p.Scope.Equal(sc) || p.LocationID != locationID {
			continue
		}
		if !p.OnHand.IsZero() || !p.Reserved.IsZero() {
			return true, nil
		}
	}
	return false, nil
}

func (r *StockRepository) List(ctx context.Context, sc scope.Scope, filter stock.Filter) ([]*stock.Projection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*stock.Projection
	for _, p := range r.rows {
		if !p.Scope.Equal(sc) {
			continue
		}
		if filter.WarehouseID != nil && p.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.LocationID != nil && p.LocationID != *filter.LocationID {
			continue
		}
		if filter.ProductID != nil && p.ProductID != *filter.ProductID {
			continue
		}
		if filter.ExcludeZero && p.OnHand.IsZero() && p.Reserved.IsZero() {
			continue
		}
		out = append(out, clone(p))
	}
	return out, nil
}

func touch(p *stock.Projection) {
	p.Version++
	p.UpdatedAt = time.Now().UTC()
}
