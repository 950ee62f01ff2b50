package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PendingStatus is the lifecycle state of a queued write
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusRejected PendingStatus = "rejected"
	PendingStatusApplied  PendingStatus = "applied"
	PendingStatusFailed   PendingStatus = "failed"
)

// IsValid reports whether the status is known
func (s PendingStatus) IsValid() bool {
	switch s {
	case PendingStatusPending, PendingStatusApproved, PendingStatusRejected,
		PendingStatusApplied, PendingStatusFailed:
		return true
	}
	return false
}

// PendingAction is a write held back by moderation together with the
// command needed to replay it.
type PendingAction struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Command   string          `json:"command"`
	Payload   json.RawMessage `json:"payload"`
	Actor     string          `json:"actor"`
	Status    PendingStatus   `json:"status"`
	Moderator string          `json:"moderator,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewPendingAction creates a pending record for a serialized command
func NewPendingAction(action, command string, payload json.RawMessage, actor string) *PendingAction {
	now := time.Now().UTC()
	return &PendingAction{
		ID:        uuid.New().String(),
		Action:    action,
		Command:   command,
		Payload:   payload,
		Actor:     actor,
		Status:    PendingStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
