package memory

import (
	"context"
	"sync"

	"stokado/internal/core/scope"
)

// PublishedEvent captures one Publish call.
type PublishedEvent struct {
	Scope     scope.Scope
	ModuleKey string
	EventType string
	Payload   any
}

// Publisher records events in memory.
type Publisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(ctx context.Context, sc scope.Scope, moduleKey, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{
		Scope:     sc,
		ModuleKey: moduleKey,
		EventType: eventType,
		Payload:   payload,
	})
	return nil
}

// Events returns a snapshot of everything published so far.
func (p *Publisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// ByType filters the recorded events.
func (p *Publisher) ByType(eventType string) []PublishedEvent {
	var out []PublishedEvent
	for _, e := range p.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
