package handlers

import (
	"github.com/gin-gonic/gin"

	"stokado/internal/domain/location"
	"stokado/internal/infrastructure/http/v1/dto"
)

// LocationHandler exposes the location catalog.
type LocationHandler struct {
	base    *BaseHandler
	service *location.Service
}

// NewLocationHandler creates a location handler.
func NewLocationHandler(base *BaseHandler, service *location.Service) *LocationHandler {
	return &LocationHandler{base: base, service: service}
}

// Bootstrap seeds the canonical root set of a warehouse.
// POST /v1/locations/bootstrap
func (h *LocationHandler) Bootstrap(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	var req dto.BootstrapWarehouseRequest
	if !h.base.BindJSON(c, &req) {
		return
	}

	warehouseID, err := dto.ParseID("warehouseId", req.WarehouseID)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	roots, err := h.service.BootstrapWarehouse(c.Request.Context(), sc, warehouseID, req.WarehouseCode)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.Created(c, dto.FromLocations(roots))
}

// Create adds a location to the tree.
// POST /v1/locations
func (h *LocationHandler) Create(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	var req dto.CreateLocationRequest
	if !h.base.BindJSON(c, &req) {
		return
	}

	warehouseID, err := dto.ParseID("warehouseId", req.WarehouseID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	parentID, err := dto.ParseOptionalID("parentLocationId", req.ParentID)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	loc, err := h.service.Create(c.Request.Context(), location.CreateInput{
		Scope:         sc,
		WarehouseID:   warehouseID,
		ParentID:      parentID,
		Name:          req.Name,
		Code:          req.Code,
		Type:          location.Type(req.Type),
		Usage:         location.Usage(req.Usage),
		WarehouseCode: req.WarehouseCode,
	})
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.Created(c, dto.FromLocation(loc))
}

// Get returns one location.
// GET /v1/locations/:id
func (h *LocationHandler) Get(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	locationID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	loc, err := h.service.GetByID(c.Request.Context(), sc, locationID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromLocation(loc))
}

// Tree returns the nested location tree of a warehouse.
// GET /v1/warehouses/:id/locations/tree
func (h *LocationHandler) Tree(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	warehouseID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	tree, err := h.service.GetTree(c.Request.Context(), sc, warehouseID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromTree(tree))
}

// Update patches a location. A code change rewrites descendant paths.
// PATCH /v1/locations/:id
func (h *LocationHandler) Update(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	locationID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateLocationRequest
	if !h.base.BindJSON(c, &req) {
		return
	}

	patch := location.UpdatePatch{
		Name:   req.Name,
		Code:   req.Code,
		Active: req.Active,
	}
	if req.Usage != nil {
		usage := location.Usage(*req.Usage)
		patch.Usage = &usage
	}

	loc, err := h.service.Update(c.Request.Context(), sc, locationID, patch)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromLocation(loc))
}

// Remove soft-deletes a location. Refused while stock is present.
// DELETE /v1/locations/:id
func (h *LocationHandler) Remove(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	locationID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Remove(c.Request.Context(), sc, locationID); err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.NoContent(c)
}
