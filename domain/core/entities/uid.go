// Package entities holds the addressable entities of the topic graph: topics,
// the resources topics annotate, and the links joining them.
//
// Every entity is identified by a URI made of a kind namespace and a key
// (see uri.go). Stores persist entities as Snapshots so that adapters stay
// independent of the concrete entity types.
package entities

import (
	"fmt"
	"time"
)

// Kind identifies the type of an addressable entity
type Kind string

const (
	KindTopic      Kind = "topic"
	KindItemsRange Kind = "items_range"
	KindRecord     Kind = "record"
)

// IsValid reports whether the kind is known
func (k Kind) IsValid() bool {
	_, ok := namespaces[k]
	return ok
}

// UID is an entity addressable by a globally unique URI
type UID interface {
	URI() string
	Kind() Kind
	// Title is the human readable label used in presentations.
	Title() string
	// Snapshot returns the persistable form of the entity.
	Snapshot() Snapshot
}

// Snapshot is the store representation of any addressable entity
type Snapshot struct {
	URI       string            `json:"uri"`
	Kind      Kind              `json:"kind"`
	Name      string            `json:"name"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Field returns a named field or the empty string
func (s Snapshot) Field(name string) string {
	if name == "name" {
		return s.Name
	}
	return s.Fields[name]
}

// FromSnapshot rebuilds a typed entity from its stored form
func FromSnapshot(s Snapshot) (UID, error) {
	switch s.Kind {
	case KindTopic:
		return topicFromSnapshot(s), nil
	case KindItemsRange:
		return itemsRangeFromSnapshot(s), nil
	case KindRecord:
		return recordFromSnapshot(s)
	default:
		return nil, fmt.Errorf("unknown entity kind %q for %s", s.Kind, s.URI)
	}
}
