package events

import (
	"time"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// ModerationNotice is the audit record of a write that was applied
type ModerationNotice struct {
	BaseEvent
	Actor string            `json:"actor"`
	Args  map[string]string `json:"args,omitempty"`
}

// NewModerationNotice creates a notice for the given subject
func NewModerationNotice(action, subject, actor string, args map[string]string) ModerationNotice {
	return ModerationNotice{
		BaseEvent: BaseEvent{
			AggregateID: subject,
			EventType:   "moderation." + action,
			Timestamp:   time.Now().UTC(),
		},
		Actor: actor,
		Args:  args,
	}
}

// PendingActionDecided is raised when a moderator approves or rejects a queued write
type PendingActionDecided struct {
	BaseEvent
	Action    string `json:"action"`
	Status    string `json:"status"`
	Moderator string `json:"moderator"`
}

// NewPendingActionDecided creates the event for a pending action decision
func NewPendingActionDecided(id, action, status, moderator string) PendingActionDecided {
	return PendingActionDecided{
		BaseEvent: BaseEvent{
			AggregateID: id,
			EventType:   "moderation.pending." + status,
			Timestamp:   time.Now().UTC(),
		},
		Action:    action,
		Status:    status,
		Moderator: moderator,
	}
}
