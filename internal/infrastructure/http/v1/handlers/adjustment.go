package handlers

import (
	"github.com/gin-gonic/gin"

	"stokado/internal/core/scope"
	"stokado/internal/domain/adjustment"
	"stokado/internal/infrastructure/http/v1/dto"
	"stokado/internal/infrastructure/storage/postgres"
	"stokado/pkg/logger"
)

// AdjustmentHandler exposes the inventory count workflow.
type AdjustmentHandler struct {
	base    *BaseHandler
	service *adjustment.Service
	audit   *postgres.AuditService
}

// NewAdjustmentHandler creates an adjustment handler. audit may be nil.
func NewAdjustmentHandler(base *BaseHandler, service *adjustment.Service, audit *postgres.AuditService) *AdjustmentHandler {
	return &AdjustmentHandler{base: base, service: service, audit: audit}
}

// Create opens a count session at one location.
// POST /v1/adjustments
func (h *AdjustmentHandler) Create(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	var req dto.CreateAdjustmentRequest
	if !h.base.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput(sc)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	a, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.Created(c, dto.FromAdjustment(a))
}

// StartCount moves the session into counting.
// POST /v1/adjustments/:id/start
func (h *AdjustmentHandler) StartCount(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	adjustmentID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.StartCount(c.Request.Context(), sc, adjustmentID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromAdjustment(a))
}

// RecordCount records the counted figure on one line.
// PUT /v1/adjustments/:id/lines/:lineId/count
func (h *AdjustmentHandler) RecordCount(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	adjustmentID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.base.PathID(c, "lineId")
	if !ok {
		return
	}

	var req dto.RecordCountRequest
	if !h.base.BindJSON(c, &req) {
		return
	}

	a, err := h.service.RecordCount(c.Request.Context(), sc, adjustmentID, lineID, req.CountedQty)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromAdjustment(a))
}

// Review settles final quantities on the session lines.
// POST /v1/adjustments/:id/review
func (h *AdjustmentHandler) Review(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	adjustmentID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.ReviewAdjustmentRequest
	if c.Request.ContentLength > 0 && !h.base.BindJSON(c, &req) {
		return
	}

	decisions, err := req.ToDecisions()
	if err != nil {
		h.base.Error(c, err)
		return
	}

	a, err := h.service.Review(c.Request.Context(), sc, adjustmentID, decisions)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromAdjustment(a))
}

// Post turns the count deltas into ADJUST movements. Reposting is a
// no-op.
// POST /v1/adjustments/:id/post
func (h *AdjustmentHandler) Post(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	adjustmentID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.Post(c.Request.Context(), sc, adjustmentID)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	h.logAudit(c, sc, a)
	h.base.OK(c, dto.FromAdjustment(a))
}

// Cancel aborts a session that has not been posted.
// POST /v1/adjustments/:id/cancel
func (h *AdjustmentHandler) Cancel(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	adjustmentID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.Cancel(c.Request.Context(), sc, adjustmentID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromAdjustment(a))
}

// Get returns one count session.
// GET /v1/adjustments/:id
func (h *AdjustmentHandler) Get(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	adjustmentID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.GetByID(c.Request.Context(), sc, adjustmentID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromAdjustment(a))
}

// List returns count sessions matching the filter.
// GET /v1/adjustments
func (h *AdjustmentHandler) List(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	filter := adjustment.Filter{Limit: h.base.ParseIntQuery(c, "limit", 100)}
	if v := c.Query("state"); v != "" {
		state := adjustment.State(v)
		filter.State = &state
	}
	if v := c.Query("locationId"); v != "" {
		locationID, err := dto.ParseID("locationId", v)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		filter.LocationID = &locationID
	}

	adjustments, err := h.service.List(c.Request.Context(), sc, filter)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.List(c, dto.FromAdjustments(adjustments), len(adjustments))
}

func (h *AdjustmentHandler) logAudit(c *gin.Context, sc scope.Scope, a *adjustment.Adjustment) {
	if h.audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.audit.LogChange(ctx, sc, "adjustment", a.ID, postgres.AuditActionPost, a); err != nil {
		logger.Warn(ctx, "audit write failed", "adjustment_id", a.ID, "error", err)
	}
}
