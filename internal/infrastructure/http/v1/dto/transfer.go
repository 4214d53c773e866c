package dto

import (
	"time"

	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/transfer"
)

// TransferLineRequest is one requested transfer line.
type TransferLineRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	LotID     *string        `json:"lotId"`
	Qty       types.Quantity `json:"qty"`
}

// CreateTransferRequest opens a draft transfer between two warehouses.
type CreateTransferRequest struct {
	OriginWarehouseID      string                `json:"originWarehouseId" binding:"required"`
	DestinationWarehouseID string                `json:"destinationWarehouseId" binding:"required"`
	Lines                  []TransferLineRequest `json:"lines" binding:"required"`
}

// ToInput converts the request to a domain create input.
func (r CreateTransferRequest) ToInput(sc scope.Scope) (transfer.CreateInput, error) {
	originID, err := ParseID("originWarehouseId", r.OriginWarehouseID)
	if err != nil {
		return transfer.CreateInput{}, err
	}
	destinationID, err := ParseID("destinationWarehouseId", r.DestinationWarehouseID)
	if err != nil {
		return transfer.CreateInput{}, err
	}

	lines := make([]transfer.LineInput, 0, len(r.Lines))
	for _, line := range r.Lines {
		productID, err := ParseID("lines.productId", line.ProductID)
		if err != nil {
			return transfer.CreateInput{}, err
		}
		lotID, err := ParseOptionalID("lines.lotId", line.LotID)
		if err != nil {
			return transfer.CreateInput{}, err
		}
		lines = append(lines, transfer.LineInput{
			ProductID: productID,
			LotID:     lotID,
			Qty:       line.Qty,
		})
	}

	return transfer.CreateInput{
		Scope:                  sc,
		OriginWarehouseID:      originID,
		DestinationWarehouseID: destinationID,
		Lines:                  lines,
	}, nil
}

// TransferLineResponse is the API shape of one transfer line.
type TransferLineResponse struct {
	LineID    string         `json:"lineId"`
	ProductID string         `json:"productId"`
	LotID     *string        `json:"lotId,omitempty"`
	Qty       types.Quantity `json:"qty"`
}

// TransferResponse is the API shape of one transfer document.
type TransferResponse struct {
	ID                     string                 `json:"id"`
	OriginWarehouseID      string                 `json:"originWarehouseId"`
	DestinationWarehouseID string                 `json:"destinationWarehouseId"`
	Lines                  []TransferLineResponse `json:"lines"`
	State                  string                 `json:"state"`
	CreatedAt              time.Time              `json:"createdAt"`
	UpdatedAt              time.Time              `json:"updatedAt"`
}

// FromTransfer converts a domain transfer.
func FromTransfer(t *transfer.Transfer) TransferResponse {
	lines := make([]TransferLineResponse, 0, len(t.Lines))
	for _, line := range t.Lines {
		lr := TransferLineResponse{
			LineID:    line.LineID.String(),
			ProductID: line.ProductID.String(),
			Qty:       line.Qty,
		}
		if line.LotID != nil {
			s := line.LotID.String()
			lr.LotID = &s
		}
		lines = append(lines, lr)
	}
	return TransferResponse{
		ID:                     t.ID.String(),
		OriginWarehouseID:      t.OriginWarehouseID.String(),
		DestinationWarehouseID: t.DestinationWarehouseID.String(),
		Lines:                  lines,
		State:                  string(t.State),
		CreatedAt:              t.CreatedAt,
		UpdatedAt:              t.UpdatedAt,
	}
}

// FromTransfers converts a list.
func FromTransfers(ts []*transfer.Transfer) []TransferResponse {
	out := make([]TransferResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, FromTransfer(t))
	}
	return out
}
