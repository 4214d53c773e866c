package handlers

import (
	"github.com/gin-gonic/gin"

	"stokado/internal/domain/movement"
	"stokado/internal/infrastructure/http/v1/dto"
	"stokado/internal/infrastructure/storage/postgres"
	"stokado/pkg/logger"
)

// MovementHandler exposes the movement ledger.
type MovementHandler struct {
	base    *BaseHandler
	service *movement.Service
	audit   *postgres.AuditService
}

// NewMovementHandler creates a movement handler. audit may be nil.
func NewMovementHandler(base *BaseHandler, service *movement.Service, audit *postgres.AuditService) *MovementHandler {
	return &MovementHandler{base: base, service: service, audit: audit}
}

// Post appends one ledger entry. Idempotent by external reference: a
// replay returns the original movement with 200 semantics.
// POST /v1/movements
func (h *MovementHandler) Post(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	var req dto.PostMovementRequest
	if !h.base.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput(sc)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	m, err := h.service.Post(c.Request.Context(), input)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	h.logAudit(c, m)
	h.base.Created(c, dto.FromMovement(m))
}

func (h *MovementHandler) logAudit(c *gin.Context, m *movement.Movement) {
	if h.audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.audit.LogChange(ctx, m.Scope, "movement", m.ID, postgres.AuditActionPost, m); err != nil {
		logger.Warn(ctx, "audit write failed", "movement_id", m.ID, "error", err)
	}
}

// Get returns one movement.
// GET /v1/movements/:id
func (h *MovementHandler) Get(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	movementID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	m, err := h.service.GetByID(c.Request.Context(), sc, movementID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromMovement(m))
}

// List returns movements matching the filter.
// GET /v1/movements
func (h *MovementHandler) List(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	filter := movement.Filter{Limit: h.base.ParseIntQuery(c, "limit", 100)}
	if v := c.Query("productId"); v != "" {
		productID, err := dto.ParseID("productId", v)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		filter.ProductID = &productID
	}
	if v := c.Query("locationId"); v != "" {
		locationID, err := dto.ParseID("locationId", v)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		filter.LocationID = &locationID
	}
	if v := c.Query("type"); v != "" {
		t := movement.Type(v)
		filter.Type = &t
	}

	movements, err := h.service.List(c.Request.Context(), sc, filter)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.List(c, dto.FromMovements(movements), len(movements))
}
