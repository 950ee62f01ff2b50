package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"go.uber.org/zap"
)

// DefaultSuggestLimit caps suggestion results when no limit is configured
const DefaultSuggestLimit = 20

// TopicServiceConfig holds tunables of the topic graph
type TopicServiceConfig struct {
	SuggestLimit int
}

// TopicService is the entry point of the topic graph: lookup, creation,
// suggestions and index reload. Per-topic operations live on TopicProvider.
type TopicService struct {
	store       ports.EntityStore
	links       *LinkService
	index       *TopicIndex
	locker      ports.Locker
	broadcaster ports.ReloadBroadcaster
	config      TopicServiceConfig
	logger      *zap.Logger
}

// NewTopicService creates a new topic service. The broadcaster may be nil
// when the process runs alone.
func NewTopicService(
	store ports.EntityStore,
	links *LinkService,
	index *TopicIndex,
	locker ports.Locker,
	broadcaster ports.ReloadBroadcaster,
	config TopicServiceConfig,
	logger *zap.Logger,
) *TopicService {
	if config.SuggestLimit <= 0 {
		config.SuggestLimit = DefaultSuggestLimit
	}
	return &TopicService{
		store:       store,
		links:       links,
		index:       index,
		locker:      locker,
		broadcaster: broadcaster,
		config:      config,
		logger:      logger,
	}
}

// Links exposes the link model the service writes through
func (s *TopicService) Links() *LinkService {
	return s.links
}

// FindOrCreate returns the topic with this name, creating it when absent.
// Calling it again with the same name yields the same URI.
func (s *TopicService) FindOrCreate(ctx context.Context, name string) (*TopicProvider, error) {
	topic, err := entities.NewTopic(name)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, topic.URI())
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.findOrCreate(ctx, topic)
}

// findOrCreate expects the caller to hold the lock on topic's URI
func (s *TopicService) findOrCreate(ctx context.Context, topic *entities.Topic) (*TopicProvider, error) {
	existing, err := s.load(ctx, topic.URI())
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	if err := s.store.Save(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to save topic %q: %w", topic.Name(), err)
	}
	s.index.Put(topic.Name(), topic.URI())

	s.logger.Info("Topic created",
		zap.String("topic", topic.Name()),
		zap.String("uri", topic.URI()),
	)
	return s.provider(topic), nil
}

// GetByName looks a topic up by exact name. It fails with NotFound unless
// createIfAbsent is set.
func (s *TopicService) GetByName(ctx context.Context, name string, createIfAbsent bool) (*TopicProvider, error) {
	if createIfAbsent {
		return s.FindOrCreate(ctx, name)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("topic name is required")
	}
	return s.load(ctx, entities.TopicURI(name))
}

// GetByURI looks a topic up by URI
func (s *TopicService) GetByURI(ctx context.Context, uri string) (*TopicProvider, error) {
	return s.load(ctx, uri)
}

// Exist reports whether a topic with this name exists
func (s *TopicService) Exist(ctx context.Context, name string) (bool, error) {
	return s.index.Contains(ctx, strings.TrimSpace(name))
}

// Reload discards the topic index here and asks other processes to do the same
func (s *TopicService) Reload(ctx context.Context) error {
	s.index.Invalidate()
	if s.broadcaster == nil {
		return nil
	}
	if err := s.broadcaster.Broadcast(ctx); err != nil {
		// the local index is already invalid; peers catch up on their next reload
		s.logger.Warn("Failed to broadcast topic reload", zap.Error(err))
	}
	return nil
}

// WatchReloads invalidates the index whenever another process reloads.
// It blocks until ctx is done.
func (s *TopicService) WatchReloads(ctx context.Context) error {
	if s.broadcaster == nil {
		<-ctx.Done()
		return nil
	}
	return s.broadcaster.Subscribe(ctx, s.index.Invalidate)
}

// Suggest returns names of topics containing q, case-insensitively, as stored
func (s *TopicService) Suggest(ctx context.Context, q string) ([]string, error) {
	found, err := s.store.GetLike(ctx, entities.KindTopic, "name", ports.ContainsPattern(strings.TrimSpace(q)), s.config.SuggestLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest topics: %w", err)
	}
	names := make([]string, 0, len(found))
	for _, t := range found {
		names = append(names, t.Title())
	}
	return names, nil
}

// LinkedTopic is a topic joined to some URI together with the link annotation
type LinkedTopic struct {
	Name    string            `json:"name"`
	URI     string            `json:"uri"`
	LinkID  string            `json:"link_id"`
	Kind    entities.LinkKind `json:"kind"`
	Rate    *float64          `json:"rate,omitempty"`
	Comment *string           `json:"comment,omitempty"`
	Quote   *string           `json:"quote,omitempty"`
}

// TopicsFor lists the topics linked to any URI
func (s *TopicService) TopicsFor(ctx context.Context, uri string) ([]LinkedTopic, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, apperrors.NewValidationError("uri is required")
	}
	links, err := s.links.GetAllLinks(ctx, uri)
	if err != nil {
		return nil, err
	}

	out := make([]LinkedTopic, 0, len(links))
	for _, l := range links {
		other := l.Other(uri)
		if kind, _ := entities.KindOfURI(other); kind != entities.KindTopic {
			continue
		}
		topic, err := s.store.Get(ctx, entities.KindTopic, other)
		if err != nil {
			if apperrors.IsNotFound(err) {
				s.logger.Warn("Link points to a missing topic", zap.String("linkID", l.ID()), zap.String("uri", other))
				continue
			}
			return nil, err
		}
		out = append(out, LinkedTopic{
			Name:    topic.Title(),
			URI:     topic.URI(),
			LinkID:  l.ID(),
			Kind:    l.Kind(),
			Rate:    l.Rate(),
			Comment: l.Comment(),
			Quote:   l.Quote(),
		})
	}
	return out, nil
}

func (s *TopicService) load(ctx context.Context, uri string) (*TopicProvider, error) {
	uid, err := s.store.Get(ctx, entities.KindTopic, uri)
	if err != nil {
		return nil, err
	}
	topic, ok := uid.(*entities.Topic)
	if !ok {
		return nil, apperrors.NewInternalError("entity " + uri + " is not a topic")
	}
	return s.provider(topic), nil
}

func (s *TopicService) provider(topic *entities.Topic) *TopicProvider {
	return &TopicProvider{service: s, topic: topic}
}

// lockPair locks two keys in a stable order
func (s *TopicService) lockPair(ctx context.Context, a, b string) (func(), error) {
	if a > b {
		a, b = b, a
	}
	unlockA, err := s.locker.Lock(ctx, a)
	if err != nil {
		return nil, err
	}
	if a == b {
		return unlockA, nil
	}
	unlockB, err := s.locker.Lock(ctx, b)
	if err != nil {
		unlockA()
		return nil, err
	}
	return func() {
		unlockB()
		unlockA()
	}, nil
}
