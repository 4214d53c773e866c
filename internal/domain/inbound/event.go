// Package inbound translates upstream business events (purchase receipts,
// closed sale tickets, transfer legs) into movement ledger calls. The
// payloads form a closed set of typed variants produced by a strict parser;
// unknown types or malformed shapes are rejected up front.
package inbound

import (
	"bytes"
	"encoding/json"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/core/types"
	"stokado/internal/domain/location"
	"stokado/internal/domain/movement"
)

// EventType names one supported upstream event.
type EventType string

const (
	EventPurchaseReceipt    EventType = "purchase.receipt"
	EventTicketClosed       EventType = "ticket.closed"
	EventTransferDispatched EventType = "transfer.dispatched"
	EventTransferReceived   EventType = "transfer.received"
)

// LocationHint identifies a location by id, code or usage. Resolution
// order: id, code, usage, then the event type's defaults.
type LocationHint struct {
	ID    *id.ID
	Code  string
	Usage location.Usage
}

// IsZero reports whether the hint carries nothing.
func (h LocationHint) IsZero() bool {
	return h.ID == nil && h.Code == "" && h.Usage == ""
}

func (h LocationHint) ref() location.Ref {
	return location.Ref{ID: h.ID, Code: h.Code, Usage: h.Usage}
}

// StockEvent is the common body shared by every variant.
type StockEvent struct {
	Scope scope.Scope

	ProductID id.ID
	LotID     *id.ID
	Qty       types.Quantity
	UnitCost  types.Money

	WarehouseID *id.ID
	From        LocationHint
	To          LocationHint

	Reference movement.ExternalReference
}

// Event is one parsed upstream event.
type Event interface {
	Type() EventType
	Body() *StockEvent
}

// PurchaseReceipt books received goods in.
type PurchaseReceipt struct{ StockEvent }

func (e *PurchaseReceipt) Type() EventType   { return EventPurchaseReceipt }
func (e *PurchaseReceipt) Body() *StockEvent { return &e.StockEvent }

// TicketClosed issues goods sold at the point of sale.
type TicketClosed struct{ StockEvent }

func (e *TicketClosed) Type() EventType   { return EventTicketClosed }
func (e *TicketClosed) Body() *StockEvent { return &e.StockEvent }

// TransferDispatched moves goods from storage into transit.
type TransferDispatched struct{ StockEvent }

func (e *TransferDispatched) Type() EventType   { return EventTransferDispatched }
func (e *TransferDispatched) Body() *StockEvent { return &e.StockEvent }

// TransferReceived moves goods from transit into destination storage.
type TransferReceived struct{ StockEvent }

func (e *TransferReceived) Type() EventType   { return EventTransferReceived }
func (e *TransferReceived) Body() *StockEvent { return &e.StockEvent }

type envelope struct {
	Type          EventType       `json:"type"`
	TenantID      string          `json:"tenantId"`
	LegalEntityID id.ID           `json:"legalEntityId"`
	Payload       json.RawMessage `json:"payload"`
}

type wirePayload struct {
	ProductID id.ID          `json:"productId"`
	LotID     *id.ID         `json:"lotId,omitempty"`
	Qty       types.Quantity `json:"qty"`
	UnitCost  *types.Money   `json:"unitCost,omitempty"`

	WarehouseID *id.ID `json:"warehouseId,omitempty"`

	FromLocationID    *id.ID         `json:"fromLocationId,omitempty"`
	FromLocationCode  string         `json:"fromLocationCode,omitempty"`
	FromLocationUsage location.Usage `json:"fromLocationUsage,omitempty"`

	ToLocationID    *id.ID         `json:"toLocationId,omitempty"`
	ToLocationCode  string         `json:"toLocationCode,omitempty"`
	ToLocationUsage location.Usage `json:"toLocationUsage,omitempty"`

	Reference movement.ExternalReference `json:"reference"`
}

// Parse decodes one inbound event strictly: unknown envelope or payload
// fields, unknown event types and missing required fields are all
// invalid-input.
func Parse(raw []byte) (Event, error) {
	var env envelope
	if err := strictDecode(raw, &env); err != nil {
		return nil, apperror.NewInvalidInput("malformed event envelope").WithCause(err)
	}
	sc := scope.New(env.TenantID, env.LegalEntityID)
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if len(env.Payload) == 0 {
		return nil, apperror.NewInvalidInput("event payload is required").
			WithDetail("type", string(env.Type))
	}

	var wire wirePayload
	if err := strictDecode(env.Payload, &wire); err != nil {
		return nil, apperror.NewInvalidInput("malformed event payload").
			WithDetail("type", string(env.Type)).
			WithCause(err)
	}

	body := StockEvent{
		Scope:       sc,
		ProductID:   wire.ProductID,
		LotID:       wire.LotID,
		Qty:         wire.Qty,
		WarehouseID: wire.WarehouseID,
		From:        LocationHint{ID: wire.FromLocationID, Code: wire.FromLocationCode, Usage: wire.FromLocationUsage},
		To:          LocationHint{ID: wire.ToLocationID, Code: wire.ToLocationCode, Usage: wire.ToLocationUsage},
		Reference:   wire.Reference,
	}
	if wire.UnitCost != nil {
		body.UnitCost = *wire.UnitCost
	}
	if id.IsNil(body.ProductID) {
		return nil, apperror.NewInvalidInput("event product is required").
			WithDetail("type", string(env.Type))
	}
	if !body.Qty.IsPositive() {
		return nil, apperror.NewInvalidInput("event quantity must be positive").
			WithDetail("type", string(env.Type)).
			WithDetail("value", body.Qty.String())
	}
	if err := body.Reference.Validate(); err != nil {
		return nil, err
	}

	switch env.Type {
	case EventPurchaseReceipt:
		return &PurchaseReceipt{body}, nil
	case EventTicketClosed:
		return &TicketClosed{body}, nil
	case EventTransferDispatched:
		return &TransferDispatched{body}, nil
	case EventTransferReceived:
		return &TransferReceived{body}, nil
	default:
		return nil, apperror.NewInvalidInput("unsupported event type").
			WithDetail("type", string(env.Type))
	}
}

func strictDecode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
