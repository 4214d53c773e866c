package dto

import (
	"time"

	"stokado/internal/core/types"
	"stokado/internal/domain/stock"
)

// StockFilterRequest narrows projection listings.
type StockFilterRequest struct {
	WarehouseID string `form:"warehouseId"`
	LocationID  string `form:"locationId"`
	ProductID   string `form:"productId"`
	ExcludeZero bool   `form:"excludeZero"`
}

// ProjectionResponse is the API shape of one quantity projection.
type ProjectionResponse struct {
	ProductID   string         `json:"productId"`
	LocationID  string         `json:"locationId"`
	WarehouseID string         `json:"warehouseId"`
	LotID       *string        `json:"lotId,omitempty"`
	OnHand      types.Quantity `json:"onHand"`
	Reserved    types.Quantity `json:"reserved"`
	Available   types.Quantity `json:"available"`
	Version     int64          `json:"version"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// FromProjection converts a domain projection.
func FromProjection(p *stock.Projection) ProjectionResponse {
	resp := ProjectionResponse{
		ProductID:   p.ProductID.String(),
		LocationID:  p.LocationID.String(),
		WarehouseID: p.WarehouseID.String(),
		OnHand:      p.OnHand,
		Reserved:    p.Reserved,
		Available:   p.Available(),
		Version:     p.Version,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.LotID != nil {
		s := p.LotID.String()
		resp.LotID = &s
	}
	return resp
}

// FromProjections converts a list.
func FromProjections(ps []*stock.Projection) []ProjectionResponse {
	out := make([]ProjectionResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromProjection(p))
	}
	return out
}
