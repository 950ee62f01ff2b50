package ports

import (
	"context"

	"github.com/VadimShubkin/ii/domain/events"
)

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error
}

// Locker provides mutual exclusion keyed by an arbitrary string
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	// The returned function releases the lock.
	Lock(ctx context.Context, key string) (func(), error)
}

// ReloadBroadcaster fans index invalidations out to other processes
type ReloadBroadcaster interface {
	// Broadcast announces that the topic index must be rebuilt
	Broadcast(ctx context.Context) error

	// Subscribe calls fn for every invalidation published by another process
	// until ctx is done.
	Subscribe(ctx context.Context, fn func()) error
}

// Metrics defines the interface for recording metrics
type Metrics interface {
	IncrementCounter(name string, tags map[string]string)
	RecordLatency(name string, latencyMs float64, tags map[string]string)
}
