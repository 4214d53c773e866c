package handlers

import (
	"github.com/gin-gonic/gin"

	"stokado/internal/domain/stock"
	"stokado/internal/infrastructure/http/v1/dto"
)

// StockHandler exposes the quantity projections (read-only).
type StockHandler struct {
	base    *BaseHandler
	service *stock.Service
}

// NewStockHandler creates a stock handler.
func NewStockHandler(base *BaseHandler, service *stock.Service) *StockHandler {
	return &StockHandler{base: base, service: service}
}

// List returns projections matching the filter.
// GET /v1/stock
func (h *StockHandler) List(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	var req dto.StockFilterRequest
	if !h.base.BindQuery(c, &req) {
		return
	}

	filter := stock.Filter{ExcludeZero: req.ExcludeZero}
	if req.WarehouseID != "" {
		warehouseID, err := dto.ParseID("warehouseId", req.WarehouseID)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		filter.WarehouseID = &warehouseID
	}
	if req.LocationID != "" {
		locationID, err := dto.ParseID("locationId", req.LocationID)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		filter.LocationID = &locationID
	}
	if req.ProductID != "" {
		productID, err := dto.ParseID("productId", req.ProductID)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		filter.ProductID = &productID
	}

	projections, err := h.service.List(c.Request.Context(), sc, filter)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.List(c, dto.FromProjections(projections), len(projections))
}
