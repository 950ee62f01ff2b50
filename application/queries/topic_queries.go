package queries

import (
	"context"
	"strings"

	"github.com/VadimShubkin/ii/application/services"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// GetTopicQuery asks for the presentation of one topic
type GetTopicQuery struct {
	Name             string
	IncludeResources bool
}

// Validate validates the GetTopicQuery
func (q GetTopicQuery) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return apperrors.NewValidationError("name is required")
	}
	return nil
}

// TopicView is a topic with the names of its neighbours
type TopicView struct {
	URI       string                   `json:"uri"`
	Name      string                   `json:"name"`
	Children  []string                 `json:"children"`
	Parents   []string                 `json:"parents"`
	Related   []string                 `json:"related"`
	Resources *services.TopicResources `json:"resources,omitempty"`
}

// TopicSummary is the short form of a topic used in lists
type TopicSummary struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// TopicQueries serves the read side of the topic graph
type TopicQueries struct {
	topics *services.TopicService
}

// NewTopicQueries creates the topic read service
func NewTopicQueries(topics *services.TopicService) *TopicQueries {
	return &TopicQueries{topics: topics}
}

// GetTopic builds the presentation of a topic
func (q *TopicQueries) GetTopic(ctx context.Context, query GetTopicQuery) (*TopicView, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	topic, err := q.topics.GetByName(ctx, query.Name, false)
	if err != nil {
		return nil, err
	}

	view := &TopicView{URI: topic.URI(), Name: topic.Name()}
	if view.Children, err = namesOf(topic.Children(ctx)); err != nil {
		return nil, err
	}
	if view.Parents, err = namesOf(topic.Parents(ctx)); err != nil {
		return nil, err
	}
	if view.Related, err = namesOf(topic.Related(ctx)); err != nil {
		return nil, err
	}
	if query.IncludeResources {
		if view.Resources, err = topic.Resources(ctx); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// Children lists the children of the named topic
func (q *TopicQueries) Children(ctx context.Context, name string) ([]TopicSummary, error) {
	topic, err := q.topics.GetByName(ctx, name, false)
	if err != nil {
		return nil, err
	}
	return summariesOf(topic.Children(ctx))
}

// Parents lists the parents of the named topic
func (q *TopicQueries) Parents(ctx context.Context, name string) ([]TopicSummary, error) {
	topic, err := q.topics.GetByName(ctx, name, false)
	if err != nil {
		return nil, err
	}
	return summariesOf(topic.Parents(ctx))
}

// TopicsFor lists the topics linked to a URI
func (q *TopicQueries) TopicsFor(ctx context.Context, uri string) ([]services.LinkedTopic, error) {
	return q.topics.TopicsFor(ctx, uri)
}

// Suggest lists topic names containing q
func (q *TopicQueries) Suggest(ctx context.Context, query string) ([]string, error) {
	return q.topics.Suggest(ctx, query)
}

func namesOf(providers []*services.TopicProvider, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	return names, nil
}

func summariesOf(providers []*services.TopicProvider, err error) ([]TopicSummary, error) {
	if err != nil {
		return nil, err
	}
	out := make([]TopicSummary, len(providers))
	for i, p := range providers {
		out[i] = TopicSummary{URI: p.URI(), Name: p.Name()}
	}
	return out, nil
}
