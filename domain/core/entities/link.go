package entities

import (
	"time"

	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/google/uuid"
)

// LinkKind classifies the role of a link. It is fixed when the link is
// created and stored with it.
type LinkKind string

const (
	// LinkKindHierarchy joins a parent topic (endpoint A) to a child topic (endpoint B).
	LinkKindHierarchy LinkKind = "hierarchy"
	// LinkKindRelated joins two topics without direction.
	LinkKindRelated LinkKind = "related"
	// LinkKindResource joins a topic (endpoint A) to the resource it annotates (endpoint B).
	LinkKindResource LinkKind = "resource"
)

// IsValid reports whether the link kind is known
func (k LinkKind) IsValid() bool {
	switch k {
	case LinkKindHierarchy, LinkKindRelated, LinkKindResource:
		return true
	}
	return false
}

// LinkOptions carries the optional annotation of a link
type LinkOptions struct {
	Comment *string
	Quote   *string
	Rate    *float64
}

// Link is an edge between two addressable entities
type Link struct {
	id        string
	kind      LinkKind
	endpointA string
	endpointB string
	rate      *float64
	comment   *string
	quote     *string
	createdAt time.Time
	updatedAt time.Time
}

// LinkRecord is the persisted form of a link
type LinkRecord struct {
	ID        string    `json:"id"`
	Kind      LinkKind  `json:"kind"`
	EndpointA string    `json:"endpoint_a"`
	EndpointB string    `json:"endpoint_b"`
	Rate      *float64  `json:"rate,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	Quote     *string   `json:"quote,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLink creates a link with a fresh synthetic id
func NewLink(kind LinkKind, endpointA, endpointB string, opts LinkOptions) (*Link, error) {
	if !kind.IsValid() {
		return nil, apperrors.NewValidationError("unknown link kind: " + string(kind))
	}
	if endpointA == "" || endpointB == "" {
		return nil, apperrors.NewValidationError("link endpoints are required")
	}
	if endpointA == endpointB {
		return nil, apperrors.NewSelfReferentialError("cannot link " + endpointA + " to itself")
	}

	now := time.Now().UTC()
	return &Link{
		id:        uuid.New().String(),
		kind:      kind,
		endpointA: endpointA,
		endpointB: endpointB,
		rate:      opts.Rate,
		comment:   opts.Comment,
		quote:     opts.Quote,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructLink creates a link from persistence
func ReconstructLink(r LinkRecord) *Link {
	return &Link{
		id:        r.ID,
		kind:      r.Kind,
		endpointA: r.EndpointA,
		endpointB: r.EndpointB,
		rate:      r.Rate,
		comment:   r.Comment,
		quote:     r.Quote,
		createdAt: r.CreatedAt,
		updatedAt: r.UpdatedAt,
	}
}

// Record returns the persisted form of the link
func (l *Link) Record() LinkRecord {
	return LinkRecord{
		ID:        l.id,
		Kind:      l.kind,
		EndpointA: l.endpointA,
		EndpointB: l.endpointB,
		Rate:      l.rate,
		Comment:   l.comment,
		Quote:     l.quote,
		CreatedAt: l.createdAt,
		UpdatedAt: l.updatedAt,
	}
}

func (l *Link) ID() string           { return l.id }
func (l *Link) Kind() LinkKind       { return l.kind }
func (l *Link) EndpointA() string    { return l.endpointA }
func (l *Link) EndpointB() string    { return l.endpointB }
func (l *Link) Rate() *float64       { return l.rate }
func (l *Link) Comment() *string     { return l.comment }
func (l *Link) Quote() *string       { return l.quote }
func (l *Link) UpdatedAt() time.Time { return l.updatedAt }

// Has reports whether uri is one of the endpoints
func (l *Link) Has(uri string) bool {
	return l.endpointA == uri || l.endpointB == uri
}

// Connects reports whether the link joins a and b in either order
func (l *Link) Connects(a, b string) bool {
	return (l.endpointA == a && l.endpointB == b) || (l.endpointA == b && l.endpointB == a)
}

// Other returns the endpoint opposite to uri, or "" when uri is not an endpoint
func (l *Link) Other(uri string) string {
	switch uri {
	case l.endpointA:
		return l.endpointB
	case l.endpointB:
		return l.endpointA
	}
	return ""
}

// IsChildOf reports whether the link makes child a child of parent
func (l *Link) IsChildOf(child, parent string) bool {
	return l.kind == LinkKindHierarchy && l.endpointA == parent && l.endpointB == child
}

// Reassign moves the endpoint equal to from onto to, keeping the link's role
func (l *Link) Reassign(from, to string) error {
	switch from {
	case l.endpointA:
		if to == l.endpointB {
			return apperrors.NewSelfReferentialError("reassignment would link " + to + " to itself")
		}
		l.endpointA = to
	case l.endpointB:
		if to == l.endpointA {
			return apperrors.NewSelfReferentialError("reassignment would link " + to + " to itself")
		}
		l.endpointB = to
	default:
		return apperrors.NewNotFoundError("endpoint " + from + " on link " + l.id)
	}
	l.updatedAt = time.Now().UTC()
	return nil
}

// SetRate replaces the rate
func (l *Link) SetRate(rate *float64) {
	l.rate = rate
	l.updatedAt = time.Now().UTC()
}

// SetComment replaces the comment
func (l *Link) SetComment(comment *string) {
	l.comment = comment
	l.updatedAt = time.Now().UTC()
}
