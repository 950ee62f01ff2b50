package ports

import (
	"context"

	"github.com/VadimShubkin/ii/domain/core/entities"
)

// EntityStore defines the interface for addressable entity persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type EntityStore interface {
	// Get retrieves an entity by kind and URI; NotFound when absent
	Get(ctx context.Context, kind entities.Kind, uri string) (entities.UID, error)

	// GetLike retrieves entities of a kind whose field matches a LIKE pattern.
	// A limit of zero or less means no limit.
	GetLike(ctx context.Context, kind entities.Kind, field, pattern string, limit int) ([]entities.UID, error)

	// Save persists an entity (create or update)
	Save(ctx context.Context, entity entities.UID) error

	// Remove deletes an entity; removing a missing entity is not an error
	Remove(ctx context.Context, uri string) error
}

// LinkStore defines the interface for link persistence
type LinkStore interface {
	// SaveLink persists a link keyed by its id (create or update)
	SaveLink(ctx context.Context, link *entities.Link) error

	// GetLink retrieves a link by id; NotFound when absent
	GetLink(ctx context.Context, id string) (*entities.Link, error)

	// LinksOf retrieves every link where uri is either endpoint
	LinksOf(ctx context.Context, uri string) ([]*entities.Link, error)

	// RemoveLink deletes a link; removing a missing link is not an error
	RemoveLink(ctx context.Context, id string) error
}

// PendingActionStore defines the interface for the moderation queue
type PendingActionStore interface {
	// CreatePending persists a new pending action
	CreatePending(ctx context.Context, action *entities.PendingAction) error

	// GetPending retrieves a pending action by id; NotFound when absent
	GetPending(ctx context.Context, id string) (*entities.PendingAction, error)

	// ListPending retrieves actions in the given status, oldest first.
	// An empty status lists every action.
	ListPending(ctx context.Context, status entities.PendingStatus, limit int) ([]*entities.PendingAction, error)

	// TransitionPending moves an action from one status to another atomically.
	// It fails with a Conflict error when the current status is not from.
	TransitionPending(ctx context.Context, id string, from, to entities.PendingStatus, moderator, note string) (*entities.PendingAction, error)
}

// Store bundles the three persistence ports a driver provides
type Store interface {
	EntityStore
	LinkStore
	PendingActionStore
}
