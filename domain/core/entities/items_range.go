package entities

import (
	"strings"
	"time"

	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// ItemsRange is a span of numbered items (from..to) with an optional
// description. Identity is the span; the description is mutable.
type ItemsRange struct {
	uri         string
	from        string
	to          string
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewItemsRange creates a range with a generated URI
func NewItemsRange(from, to, description string) (*ItemsRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return nil, apperrors.NewValidationError("range bounds 'from' and 'to' are required")
	}
	now := time.Now().UTC()
	return &ItemsRange{
		uri:         ItemsRangeURI(from, to),
		from:        from,
		to:          to,
		description: description,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

func itemsRangeFromSnapshot(s Snapshot) *ItemsRange {
	return &ItemsRange{
		uri:         s.URI,
		from:        s.Fields["from"],
		to:          s.Fields["to"],
		description: s.Fields["description"],
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
	}
}

func (r *ItemsRange) URI() string         { return r.uri }
func (r *ItemsRange) Kind() Kind          { return KindItemsRange }
func (r *ItemsRange) From() string        { return r.from }
func (r *ItemsRange) To() string          { return r.to }
func (r *ItemsRange) Description() string { return r.description }

// Title falls back to the span when no description is set
func (r *ItemsRange) Title() string {
	if r.description != "" {
		return r.description
	}
	return r.from + " - " + r.to
}

// SetDescription overwrites the description.
// It reports whether the value changed.
func (r *ItemsRange) SetDescription(description string) bool {
	if r.description == description {
		return false
	}
	r.description = description
	r.updatedAt = time.Now().UTC()
	return true
}

// Snapshot implements UID
func (r *ItemsRange) Snapshot() Snapshot {
	return Snapshot{
		URI:  r.uri,
		Kind: KindItemsRange,
		Name: r.Title(),
		Fields: map[string]string{
			"from":        r.from,
			"to":          r.to,
			"description": r.description,
		},
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
}
