package handlers

import (
	"github.com/gin-gonic/gin"

	"stokado/internal/core/types"
	"stokado/internal/domain/reservation"
	"stokado/internal/infrastructure/http/v1/dto"
)

// ReservationHandler exposes the reservation engine.
type ReservationHandler struct {
	base    *BaseHandler
	service *reservation.Service
}

// NewReservationHandler creates a reservation handler.
func NewReservationHandler(base *BaseHandler, service *reservation.Service) *ReservationHandler {
	return &ReservationHandler{base: base, service: service}
}

// Reserve places a hold on available stock. Idempotent by external
// reference.
// POST /v1/reservations
func (h *ReservationHandler) Reserve(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	var req dto.ReserveRequest
	if !h.base.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput(sc)
	if err != nil {
		h.base.Error(c, err)
		return
	}

	res, err := h.service.Reserve(c.Request.Context(), input)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.Created(c, dto.FromReservation(res))
}

// Release returns a held quantity to available stock.
// POST /v1/reservations/:id/release
func (h *ReservationHandler) Release(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	reservationID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	res, err := h.service.Release(c.Request.Context(), sc, reservationID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromReservation(res))
}

// Consume turns a reservation into issued stock and appends the audit
// OUT movement.
// POST /v1/reservations/:id/consume
func (h *ReservationHandler) Consume(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	reservationID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	// Body is optional; consume without a unit cost is valid.
	var req dto.ConsumeRequest
	if c.Request.ContentLength > 0 && !h.base.BindJSON(c, &req) {
		return
	}

	input := reservation.ConsumeInput{Scope: sc, ReservationID: reservationID}
	if req.UnitCost != nil {
		cost, err := types.NewMoneyFromString(*req.UnitCost)
		if err != nil {
			h.base.Error(c, err)
			return
		}
		input.UnitCost = cost
	}

	res, err := h.service.Consume(c.Request.Context(), input)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromReservation(res))
}

// Get returns one reservation.
// GET /v1/reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}
	reservationID, ok := h.base.PathID(c, "id")
	if !ok {
		return
	}

	res, err := h.service.GetByID(c.Request.Context(), sc, reservationID)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.OK(c, dto.FromReservation(res))
}

// List returns reservations matching the filter.
// GET /v1/reservations
func (h *ReservationHandler) List(c *gin.Context) {
	sc, ok := h.base.Scope(c)
	if !ok {
		return
	}

	filter := reservation.Filter{Limit: h.base.ParseIntQuery(c, "limit", 100)}
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
	if v := c.Query("status"); v != "" {
		status := reservation.Status(v)
		filter.Status = &status
	}

	reservations, err := h.service.List(c.Request.Context(), sc, filter)
	if err != nil {
		h.base.Error(c, err)
		return
	}
	h.base.List(c, dto.FromReservations(reservations), len(reservations))
}
