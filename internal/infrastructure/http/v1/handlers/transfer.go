package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/domain/transfer"
	"stokado/internal/infrastructure/http/v1/dto"
	"stokado/internal/infrastructure/storage/postgres"
	"stokado/pkg/logger"
)

// TransferHandler exposes the two-warehouse transfer workflow.
type TransferHandler struct {
	base    *BaseHandler
	service *transfer.Service
	audit   *postgres.AuditService
}

// NewTransferHandler creates a transfer handler. audit may be nil.
func NewTransferHandler(base *BaseHandler, service *transfer.Service, audit *postgres.AuditService) *TransferHandler {
	return &TransferHandler{base: base, service: service, audit: audit}
}

// Create opens a draft transfer.
// POST /v1/transfers
func (h *TransferHandler) Create(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	var req dto.CreateTransferRequest
	if !h.base.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput(sc)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	t, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	h.logAudit(c, sc, t.ID, postgres.AuditActionCreate, t)
	h.base.Created(c, dto.FromTransfer(t))
}

// Confirm reserves every line at the origin and confirms the draft.
// POST /v1/transfers/:id/confirm
func (h *TransferHandler) Confirm(c *gin.Context) {
	h.transition(c, h.service.Confirm, postgres.AuditActionPost)
}

// Dispatch moves the goods into the transit location.
// POST /v1/transfers/:id/dispatch
func (h *TransferHandler) Dispatch(c *gin.Context) {
	h.transition(c, h.service.Dispatch, postgres.AuditActionDispatch)
}

// Receive lands the goods at the destination warehouse.
// POST /v1/transfers/:id/receive
func (h *TransferHandler) Receive(c *gin.Context) {
	h.transition(c, h.service.Receive, postgres.AuditActionReceive)
}

// Cancel aborts a transfer that has not been dispatched.
// POST /v1/transfers/:id/cancel
func (h *TransferHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel, postgres.AuditActionCancel)
}

func (h *TransferHandler) transition(
	c *gin.Context,
	op func(ctx context.Context, sc scope.Scope, transferID id.ID) (*transfer.Transfer, error),
	action postgres.AuditAction,
) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	transferID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	t, err := op(c.Request.Context(), sc, transferID)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	h.logAudit(c, sc, t.ID, action, t)
	h.base.OK(c, dto.FromTransfer(t))
}

// Get returns one transfer.
// GET /v1/transfers/:id
func (h *TransferHandler) Get(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	transferID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	t, err := h.service.GetByID(c.Request.Context(), sc, transferID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromTransfer(t))
}

// List returns transfers matching the filter.
// GET /v1/transfers
func (h *TransferHandler) List(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	filter := transfer.Filter{Limit: h.base.ParseIntQuery(c, "limit", 100)}
	if v := c.Query("state"); v != "" {
		state := transfer.State(v)
		filter.State = &state
	}
	if v := c.Query("warehouseId"); v != "" {
		warehouseID, err := dto.ParseID("warehouseId", v)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		filter.WarehouseID = &warehouseID
	}

	transfers, err := h.service.List(c.Request.Context(), sc, filter)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.List(c, dto.FromTransfers(transfers), len(transfers))
}

func (h *TransferHandler) logAudit(c *gin.Context, sc scope.Scope, entityID id.ID, action postgres.AuditAction, changes any) {
	if h.audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.audit.LogChange(ctx, sc, "transfer", entityID, action, changes); err != nil {
		logger.Warn(ctx, "audit write failed", "transfer_id", entityID, "error", err)
	}
}
