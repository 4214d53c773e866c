package dto

import (
	"time"

	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/movement"
)

// ExternalReferenceDTO is the wire shape of an external reference.
type ExternalReferenceDTO struct {
	Module   string `json:"module" binding:"required"`
	Entity   string `json:"entity" binding:"required"`
	EntityID string `json:"entityId" binding:"required"`
	LineID   string `json:"lineId"`
}

func (r ExternalReferenceDTO) ToDomain() movement.ExternalReference {
	return movement.ExternalReference{
		Module:   r.Module,
		Entity:   r.Entity,
		EntityID: r.EntityID,
		LineID:   r.LineID,
	}
}

// FromExternalReference converts a domain reference.
func FromExternalReference(ref movement.ExternalReference) ExternalReferenceDTO {
	return ExternalReferenceDTO{
		Module:   ref.Module,
		Entity:   ref.Entity,
		EntityID: ref.EntityID,
		LineID:   ref.LineID,
	}
}

// PostMovementRequest posts one ledger entry.
type PostMovementRequest struct {
	Type           string               `json:"type" binding:"required"`
	ProductID      string               `json:"productId" binding:"required"`
	LotID          *string              `json:"lotId"`
	Qty            types.Quantity       `json:"qty"`
	FromLocationID *string              `json:"fromLocationId"`
	ToLocationID   *string              `json:"toLocationId"`
	UnitCost       *string              `json:"unitCost"`
	Reference      ExternalReferenceDTO `json:"externalReference" binding:"required"`
}

// ToInput converts the request to a domain posting input.
func (r PostMovementRequest) ToInput(sc scope.Scope) (movement.PostInput, error) {
	productID, err := ParseID("productId", r.ProductID)
	if err != nil {
		return movement.PostInput{}, err
	}
	lotID, err := ParseOptionalID("lotId", r.LotID)
	if err != nil {
		return movement.PostInput{}, err
	}
	fromID, err := ParseOptionalID("fromLocationId", r.FromLocationID)
	if err != nil {
		return movement.PostInput{}, err
	}
	toID, err := ParseOptionalID("toLocationId", r.ToLocationID)
	if err != nil {
		return movement.PostInput{}, err
	}

	input := movement.PostInput{
		Scope:          sc,
		Type:           movement.Type(r.Type),
		ProductID:      productID,
		LotID:          lotID,
		Qty:            r.Qty,
		FromLocationID: fromID,
		ToLocationID:   toID,
		Reference:      r.Reference.ToDomain(),
	}
	if r.UnitCost != nil {
		cost, err := types.NewMoneyFromString(*r.UnitCost)
		if err != nil {
			return movement.PostInput{}, err
		}
		input.UnitCost = cost
	}
	return input, nil
}

// MovementResponse is the API shape of one ledger entry.
type MovementResponse struct {
	ID             string               `json:"id"`
	Type           string               `json:"type"`
	ProductID      string               `json:"productId"`
	LotID          *string              `json:"lotId,omitempty"`
	Qty            types.Quantity       `json:"qty"`
	FromLocationID *string              `json:"fromLocationId,omitempty"`
	ToLocationID   *string              `json:"toLocationId,omitempty"`
	UnitCost       string               `json:"unitCost"`
	Reference      ExternalReferenceDTO `json:"externalReference"`
	Status         string               `json:"status"`
	CreatedAt      time.Time            `json:"createdAt"`
}

// FromMovement converts a domain movement.
func FromMovement(m *movement.Movement) MovementResponse {
	resp := MovementResponse{
		ID:        m.ID.String(),
		Type:      string(m.Type),
		ProductID: m.ProductID.String(),
		Qty:       m.Qty,
		UnitCost:  m.UnitCost.String(),
		Reference: FromExternalReference(m.Reference),
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
	}
	if m.LotID != nil {
		s := m.LotID.String()
		resp.LotID = &s
	}
	if m.FromLocationID != nil {
		s := m.FromLocationID.String()
		resp.FromLocationID = &s
	}
	if m.ToLocationID != nil {
		s := m.ToLocationID.String()
		resp.ToLocationID = &s
	}
	return resp
}

// FromMovements converts a list.
func FromMovements(ms []*movement.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, FromMovement(m))
	}
	return out
}
