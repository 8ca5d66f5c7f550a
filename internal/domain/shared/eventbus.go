package shared

import "context"

// EventPublisher publishes domain events raised by aggregates after they
// have been durably persisted.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// NoopEventPublisher discards all events. Useful for tests and for wiring
// before a real publisher is configured.
type NoopEventPublisher struct{}

// Publish discards the events
func (NoopEventPublisher) Publish(ctx context.Context, events ...DomainEvent) error {
	return nil
}
