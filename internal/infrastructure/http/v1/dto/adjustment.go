package dto

import (
	"time"

	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/adjustment"
)

// AdjustmentLineRequest names one product to count.
type AdjustmentLineRequest struct {
	ProductID string  `json:"productId" binding:"required"`
	LotID     *string `json:"lotId"`
}

// CreateAdjustmentRequest opens a count session at one location.
type CreateAdjustmentRequest struct {
	LocationID string                  `json:"locationId" binding:"required"`
	Lines      []AdjustmentLineRequest `json:"lines" binding:"required"`
}

// ToInput converts the request to a domain create input.
func (r CreateAdjustmentRequest) ToInput(sc scope.Scope) (adjustment.CreateInput, error) {
	locationID, err := ParseID("locationId", r.LocationID)
	if err != nil {
		return adjustment.CreateInput{}, err
	}

	lines := make([]adjustment.LineInput, 0, len(r.Lines))
	for _, line := range r.Lines {
		productID, err := ParseID("lines.productId", line.ProductID)
		if err != nil {
			return adjustment.CreateInput{}, err
		}
		lotID, err := ParseOptionalID("lines.lotId", line.LotID)
		if err != nil {
			return adjustment.CreateInput{}, err
		}
		lines = append(lines, adjustment.LineInput{ProductID: productID, LotID: lotID})
	}

	return adjustment.CreateInput{
		Scope:      sc,
		LocationID: locationID,
		Lines:      lines,
	}, nil
}

// RecordCountRequest records a counted figure on one line.
type RecordCountRequest struct {
	CountedQty types.Quantity `json:"countedQty"`
}

// ReviewDecisionRequest is one final-quantity decision.
type ReviewDecisionRequest struct {
	LineID   string         `json:"lineId" binding:"required"`
	FinalQty types.Quantity `json:"finalQty"`
}

// ReviewAdjustmentRequest settles final quantities for a session.
type ReviewAdjustmentRequest struct {
	Decisions []ReviewDecisionRequest `json:"decisions"`
}

// ToDecisions converts the request decisions.
func (r ReviewAdjustmentRequest) ToDecisions() ([]adjustment.Decision, error) {
	out := make([]adjustment.Decision, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		lineID, err := ParseID("decisions.lineId", d.LineID)
		if err != nil {
			return nil, err
		}
		out = append(out, adjustment.Decision{LineID: lineID, FinalQty: d.FinalQty})
	}
	return out, nil
}

// AdjustmentLineResponse is the API shape of one count line.
type AdjustmentLineResponse struct {
	LineID           string          `json:"lineId"`
	ProductID        string          `json:"productId"`
	LotID            *string         `json:"lotId,omitempty"`
	SystemQtyAtStart types.Quantity  `json:"systemQtyAtStart"`
	CountedQty       *types.Quantity `json:"countedQty,omitempty"`
	FinalQty         *types.Quantity `json:"finalQty,omitempty"`
	Status           string          `json:"status"`
}

// AdjustmentResponse is the API shape of one count session.
type AdjustmentResponse struct {
	ID          string                   `json:"id"`
	WarehouseID string                   `json:"warehouseId"`
	LocationID  string                   `json:"locationId"`
	Lines       []AdjustmentLineResponse `json:"lines"`
	State       string                   `json:"state"`
	PostedAt    *time.Time               `json:"postedAt,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

// FromAdjustment converts a domain adjustment.
func FromAdjustment(a *adjustment.Adjustment) AdjustmentResponse {
	lines := make([]AdjustmentLineResponse, 0, len(a.Lines))
	for _, line := range a.Lines {
		lr := AdjustmentLineResponse{
			LineID:           line.LineID.String(),
			ProductID:        line.ProductID.String(),
			SystemQtyAtStart: line.SystemQtyAtStart,
			CountedQty:       line.CountedQty,
			FinalQty:         line.FinalQty,
			Status:           string(line.Status),
		}
		if line.LotID != nil {
			s := line.LotID.String()
			lr.LotID = &s
		}
		lines = append(lines, lr)
	}
	return AdjustmentResponse{
		ID:          a.ID.String(),
		WarehouseID: a.WarehouseID.String(),
		LocationID:  a.LocationID.String(),
		Lines:       lines,
		State:       string(a.State),
		PostedAt:    a.PostedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// FromAdjustments converts a list.
func FromAdjustments(as []*adjustment.Adjustment) []AdjustmentResponse {
	out := make([]AdjustmentResponse, 0, len(as))
	for _, a := range as {
		out = append(out, FromAdjustment(a))
	}
	return out
}
