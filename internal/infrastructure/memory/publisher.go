package memory

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// NoopPublisher logs events instead of publishing them. Used when the broker
// is unreachable and in tests; Events() lets tests assert what was emitted.
type NoopPublisher struct {
	lg zerolog.Logger

	mu     sync.Mutex
	events []PublishedEvent
}

type PublishedEvent struct {
	RoutingKey string
	Payload    any
}

func NewNoopPublisher(lg zerolog.Logger) *NoopPublisher {
	return &NoopPublisher{lg: lg.With().Str("component", "noop_publisher").Logger()}
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	p.events = append(p.events, PublishedEvent{RoutingKey: routingKey, Payload: payload})
	p.mu.Unlock()

	p.lg.Info().Str("routing_key", routingKey).Interface("payload", payload).Msg("event dropped (no broker)")
	return nil
}

func (p *NoopPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}
