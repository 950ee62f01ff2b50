package services

import (
	"context"
	"fmt"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"go.uber.org/zap"
)

// LinkService owns link persistence for the topic graph.
// It never deduplicates; callers check for existing links first.
type LinkService struct {
	links  ports.LinkStore
	logger *zap.Logger
}

// NewLinkService creates a new link service
func NewLinkService(links ports.LinkStore, logger *zap.Logger) *LinkService {
	return &LinkService{
		links:  links,
		logger: logger,
	}
}

// Create persists a new link between a and b
func (s *LinkService) Create(ctx context.Context, a, b entities.UID, kind entities.LinkKind, opts entities.LinkOptions) (*entities.Link, error) {
	if a == nil || b == nil {
		return nil, apperrors.NewValidationError("both link endpoints are required")
	}

	link, err := entities.NewLink(kind, a.URI(), b.URI(), opts)
	if err != nil {
		return nil, err
	}
	if err := s.links.SaveLink(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to save link: %w", err)
	}

	s.logger.Debug("Link created",
		zap.String("linkID", link.ID()),
		zap.String("kind", string(kind)),
		zap.String("a", a.URI()),
		zap.String("b", b.URI()),
	)
	return link, nil
}

// GetAllLinks returns every link touching uri
func (s *LinkService) GetAllLinks(ctx context.Context, uri string) ([]*entities.Link, error) {
	links, err := s.links.LinksOf(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to load links of %s: %w", uri, err)
	}
	return links, nil
}

// GetByEndpoints returns the link joining uriA and uriB in either order
func (s *LinkService) GetByEndpoints(ctx context.Context, uriA, uriB string) (*entities.Link, error) {
	links, err := s.GetAllLinks(ctx, uriA)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		if l.Connects(uriA, uriB) {
			return l, nil
		}
	}
	return nil, apperrors.NewNotFoundError("link between " + uriA + " and " + uriB)
}

// Save persists changes made to an existing link, keeping its id
func (s *LinkService) Save(ctx context.Context, link *entities.Link) error {
	if err := s.links.SaveLink(ctx, link); err != nil {
		return fmt.Errorf("failed to save link %s: %w", link.ID(), err)
	}
	return nil
}

// Remove deletes a link; a missing link is not an error
func (s *LinkService) Remove(ctx context.Context, link *entities.Link) error {
	if link == nil {
		return nil
	}
	if err := s.links.RemoveLink(ctx, link.ID()); err != nil {
		return fmt.Errorf("failed to remove link %s: %w", link.ID(), err)
	}
	return nil
}

// Updater starts a change set on an existing link
func (s *LinkService) Updater(link *entities.Link) *LinkUpdater {
	return &LinkUpdater{service: s, link: link}
}

// LinkUpdater accumulates field changes and writes them in one save.
// Concurrent updaters on the same link are last-writer-wins.
type LinkUpdater struct {
	service    *LinkService
	link       *entities.Link
	rate       *float64
	comment    *string
	rateSet    bool
	commentSet bool
}

// Rate sets the new rate
func (u *LinkUpdater) Rate(rate *float64) *LinkUpdater {
	u.rate, u.rateSet = rate, true
	return u
}

// Comment sets the new comment
func (u *LinkUpdater) Comment(comment *string) *LinkUpdater {
	u.comment, u.commentSet = comment, true
	return u
}

// Commit re-reads the link, applies the staged fields and saves it.
// Fields that were not staged keep their stored values.
func (u *LinkUpdater) Commit(ctx context.Context) (*entities.Link, error) {
	current, err := u.service.links.GetLink(ctx, u.link.ID())
	if err != nil {
		return nil, err
	}
	if u.rateSet {
		current.SetRate(u.rate)
	}
	if u.commentSet {
		current.SetComment(u.comment)
	}
	if err := u.service.links.SaveLink(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to update link %s: %w", current.ID(), err)
	}
	return current, nil
}
