package dto

import (
	"time"

	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/reservation"
)

// ReserveRequest places a hold on available stock.
type ReserveRequest struct {
	ProductID  string               `json:"productId" binding:"required"`
	LocationID string               `json:"locationId" binding:"required"`
	LotID      *string              `json:"lotId"`
	Qty        types.Quantity       `json:"qty"`
	Reference  ExternalReferenceDTO `json:"externalReference" binding:"required"`
}

// ToInput converts the request to a domain reserve input.
func (r ReserveRequest) ToInput(sc scope.Scope) (reservation.ReserveInput, error) {
	productID, err := ParseID("productId", r.ProductID)
	if err != nil {
		return reservation.ReserveInput{}, err
	}
	locationID, err := ParseID("locationId", r.LocationID)
	if err != nil {
		return reservation.ReserveInput{}, err
	}
	lotID, err := ParseOptionalID("lotId", r.LotID)
	if err != nil {
		return reservation.ReserveInput{}, err
	}
	return reservation.ReserveInput{
		Scope:      sc,
		ProductID:  productID,
		LocationID: locationID,
		LotID:      lotID,
		Qty:        r.Qty,
		Reference:  r.Reference.ToDomain(),
	}, nil
}

// ConsumeRequest turns a reservation into issued stock.
type ConsumeRequest struct {
	UnitCost *string `json:"unitCost"`
}

// ReservationResponse is the API shape of one reservation.
type ReservationResponse struct {
	ID          string               `json:"id"`
	ProductID   string               `json:"productId"`
	LocationID  string               `json:"locationId"`
	WarehouseID string               `json:"warehouseId"`
	LotID       *string              `json:"lotId,omitempty"`
	Qty         types.Quantity       `json:"qty"`
	Reference   ExternalReferenceDTO `json:"externalReference"`
	Status      string               `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// FromReservation converts a domain reservation.
func FromReservation(res *reservation.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID:          res.ID.String(),
		ProductID:   res.ProductID.String(),
		LocationID:  res.LocationID.String(),
		WarehouseID: res.WarehouseID.String(),
		Qty:         res.Qty,
		Reference:   FromExternalReference(res.Reference),
		Status:      string(res.Status),
		CreatedAt:   res.CreatedAt,
		UpdatedAt:   res.UpdatedAt,
	}
	if res.LotID != nil {
		s := res.LotID.String()
		resp.LotID = &s
	}
	return resp
}

// FromReservations converts a list.
func FromReservations(rs []*reservation.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, 0, len(rs))
	for _, res := range rs {
		out = append(out, FromReservation(res))
	}
	return out
}
