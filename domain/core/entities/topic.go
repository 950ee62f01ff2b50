package entities

import (
	"strings"
	"time"

	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// Topic is a named node of the graph. Its name is unique and its URI is
// derived from the name.
type Topic struct {
	uri       string
	name      string
	createdAt time.Time
	updatedAt time.Time
}

// NewTopic creates a topic with a generated URI
func NewTopic(name string) (*Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("topic name is required")
	}
	now := time.Now().UTC()
	return &Topic{
		uri:       TopicURI(name),
		name:      name,
		createdAt: now,
		updatedAt: now,
	}, nil
}

func topicFromSnapshot(s Snapshot) *Topic {
	return &Topic{
		uri:       s.URI,
		name:      s.Name,
		createdAt: s.CreatedAt,
		updatedAt: s.UpdatedAt,
	}
}

func (t *Topic) URI() string          { return t.uri }
func (t *Topic) Kind() Kind           { return KindTopic }
func (t *Topic) Title() string        { return t.name }
func (t *Topic) Name() string         { return t.name }
func (t *Topic) CreatedAt() time.Time { return t.createdAt }

// Snapshot implements UID
func (t *Topic) Snapshot() Snapshot {
	return Snapshot{
		URI:       t.uri,
		Kind:      KindTopic,
		Name:      t.name,
		CreatedAt: t.createdAt,
		UpdatedAt: t.updatedAt,
	}
}
