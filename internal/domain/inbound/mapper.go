package inbound

import (
	"context"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/scope"
	"stokado/internal/domain/location"
	"stokado/internal/domain/movement"
	"stokado/pkg/logger"
)

// Ledger posts the mapped movements. Satisfied by the movement service.
type Ledger interface {
	Post(ctx context.Context, input movement.PostInput) (*movement.Movement, error)
}

// Locations resolves location hints. Satisfied by the location service.
type Locations interface {
	Resolve(ctx context.Context, sc scope.Scope, warehouseID id.ID, ref location.Ref, defaults location.ResolveDefaults) (*location.Location, error)
	GetByID(ctx context.Context, sc scope.Scope, locationID id.ID) (*location.Location, error)
}

// eventShape describes how one event type maps onto a movement.
type eventShape struct {
	movementType movement.Type
	fromDefaults location.ResolveDefaults
	toDefaults   location.ResolveDefaults
}

var shapes = map[EventType]eventShape{
	EventPurchaseReceipt: {
		movementType: movement.TypeIn,
		toDefaults: location.ResolveDefaults{
			Usages: []location.Usage{location.UsageReceiving, location.UsageStorage},
			Codes:  []string{"RECEIVING", "STOCK"},
		},
	},
	EventTicketClosed: {
		movementType: movement.TypeOut,
		fromDefaults: location.ResolveDefaults{
			Usages: []location.Usage{location.UsagePicking, location.UsageStorage},
			Codes:  []string{"STOCK"},
		},
	},
	EventTransferDispatched: {
		movementType: movement.TypeInternal,
		fromDefaults: location.ResolveDefaults{
			Usages: []location.Usage{location.UsageStorage},
			Codes:  []string{"STOCK"},
		},
		toDefaults: location.ResolveDefaults{
			Usages: []location.Usage{location.UsageTransit},
			Codes:  []string{"TRANSIT"},
		},
	},
	EventTransferReceived: {
		movementType: movement.TypeInternal,
		fromDefaults: location.ResolveDefaults{
			Usages: []location.Usage{location.UsageTransit},
			Codes:  []string{"TRANSIT"},
		},
		toDefaults: location.ResolveDefaults{
			Usages: []location.Usage{location.UsageStorage},
			Codes:  []string{"STOCK"},
		},
	},
}

// Mapper applies parsed inbound events to the ledger. All idempotency comes
// from the movement reference: redelivered events post nothing new.
type Mapper struct {
	ledger    Ledger
	locations Locations
}

func NewMapper(ledger Ledger, locations Locations) *Mapper {
	return &Mapper{ledger: ledger, locations: locations}
}

// Handle parses and applies one raw event.
func (m *Mapper) Handle(ctx context.Context, raw []byte) (*movement.Movement, error) {
	ev, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return m.Apply(ctx, ev)
}

// Apply maps one parsed event to a movement and posts it.
func (m *Mapper) Apply(ctx context.Context, ev Event) (*movement.Movement, error) {
	shape, ok := shapes[ev.Type()]
	if !ok {
		return nil, apperror.NewInvalidInput("unsupported event type").
			WithDetail("type", string(ev.Type()))
	}
	body := ev.Body()

	input := movement.PostInput{
		Scope:     body.Scope,
		Type:      shape.movementType,
		ProductID: body.ProductID,
		LotID:     body.LotID,
		Qty:       body.Qty,
		UnitCost:  body.UnitCost,
		Reference: body.Reference,
	}

	needsFrom := shape.movementType == movement.TypeOut || shape.movementType == movement.TypeInternal
	needsTo := shape.movementType == movement.TypeIn || shape.movementType == movement.TypeInternal

	if needsFrom {
		loc, err := m.resolve(ctx, body, body.From, shape.fromDefaults)
		if err != nil {
			return nil, err
		}
		input.FromLocationID = &loc.ID
	}
	if needsTo {
		loc, err := m.resolve(ctx, body, body.To, shape.toDefaults)
		if err != nil {
			return nil, err
		}
		input.ToLocationID = &loc.ID
	}

	mv, err := m.ledger.Post(ctx, input)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "inbound event applied",
		"eventType", string(ev.Type()),
		"movementId", mv.ID,
		"reference", body.Reference.String(),
	)
	return mv, nil
}

// resolve turns a hint into a concrete location. An explicit id works
// without a warehouse; everything else needs the event's warehouseId to
// scope the lookup.
func (m *Mapper) resolve(ctx context.Context, body *StockEvent, hint LocationHint, defaults location.ResolveDefaults) (*location.Location, error) {
	if hint.ID != nil {
		return m.locations.GetByID(ctx, body.Scope, *hint.ID)
	}
	if body.WarehouseID == nil {
		return nil, apperror.NewInvalidInput("event requires a warehouse to resolve locations").
			WithDetail("reference", body.Reference.String())
	}
	return m.locations.Resolve(ctx, body.Scope, *body.WarehouseID, hint.ref(), defaults)
}
