package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"stokado/internal/core/apperror"
	"stokado/internal/domain/inbound"
	"stokado/internal/infrastructure/http/v1/dto"
)

// InboundHandler accepts raw module events and maps them onto the
// ledger.
type InboundHandler struct {
	base   *BaseHandler
	mapper *inbound.Mapper
}

func NewInboundHandler(base *BaseHandler, mapper *inbound.Mapper) *InboundHandler {
	return &InboundHandler{base: base, mapper: mapper}
}

// Handle applies one event and returns the resulting movement.
// POST /v1/inbound/events
func (h *InboundHandler) Handle(c *gin.Context) {
	if _, ok := h.base.Scope(c); !ok {
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.base.Error(c, apperror.NewValidation("failed to read request body").WithDetail("error", err.Error()))
		return
	}

	m, err := h.mapper.Handle(c.Request.Context(), raw)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.Created(c, dto.FromMovement(m))
}
