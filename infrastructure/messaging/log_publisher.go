// Package messaging holds the event publishers and the reload fan-out.
package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/events"
)

// LogPublisher writes events to the log; used when no event bus is configured
type LogPublisher struct {
	logger *zap.Logger
}

var _ ports.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a publisher that only logs
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.logger.Info("Event",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
		zap.Time("timestamp", event.GetTimestamp()),
		zap.Any("event", event),
	)
	return nil
}
