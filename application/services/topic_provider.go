package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CodeHierarchyCycle marks a DuplicateRelation caused by an ancestor becoming a child
const CodeHierarchyCycle = "hierarchy_cycle"

// TopicProvider is a handle on one existing topic. Every read goes to the
// store, so slices it returns are snapshots of the moment of the call.
type TopicProvider struct {
	service *TopicService
	topic   *entities.Topic
}

func (p *TopicProvider) Name() string           { return p.topic.Name() }
func (p *TopicProvider) URI() string            { return p.topic.URI() }
func (p *TopicProvider) Topic() *entities.Topic { return p.topic }

// Link creates a related edge between this topic and other
func (p *TopicProvider) Link(ctx context.Context, other *TopicProvider) (*entities.Link, error) {
	if other == nil {
		return nil, apperrors.NewValidationError("related topic is required")
	}
	if other.URI() == p.URI() {
		return nil, apperrors.NewSelfReferentialError("topic " + p.Name() + " cannot be related to itself")
	}

	unlock, err := p.service.lockPair(ctx, p.URI(), other.URI())
	if err != nil {
		return nil, err
	}
	defer unlock()

	if existing, err := p.linkWith(ctx, other.URI()); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperrors.NewDuplicateRelationError(fmt.Sprintf("topics %q and %q are already linked", p.Name(), other.Name()))
	}
	return p.service.links.Create(ctx, p.topic, other.topic, entities.LinkKindRelated, entities.LinkOptions{})
}

// LinkResource annotates a non-topic entity with this topic
func (p *TopicProvider) LinkResource(ctx context.Context, target entities.UID, opts entities.LinkOptions) (*entities.Link, error) {
	if target == nil {
		return nil, apperrors.NewValidationError("link target is required")
	}
	if target.Kind() == entities.KindTopic {
		return nil, apperrors.NewValidationError("use a related link to join two topics")
	}

	unlock, err := p.service.locker.Lock(ctx, p.URI())
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := p.service.store.Get(ctx, target.Kind(), target.URI()); err != nil {
		return nil, err
	}
	if existing, err := p.linkWith(ctx, target.URI()); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperrors.NewDuplicateRelationError(fmt.Sprintf("topic %q already annotates %s", p.Name(), target.URI()))
	}
	return p.service.links.Create(ctx, p.topic, target, entities.LinkKindResource, opts)
}

// UnlinkResource removes the annotation of uri by this topic.
// It reports whether a link was removed.
func (p *TopicProvider) UnlinkResource(ctx context.Context, uri string) (bool, error) {
	link, err := p.service.links.GetByEndpoints(ctx, p.URI(), uri)
	if apperrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := p.service.links.Remove(ctx, link); err != nil {
		return false, err
	}
	return true, nil
}

// AddChild find-or-creates the named topic and makes it a child of this one
func (p *TopicProvider) AddChild(ctx context.Context, name string) (*TopicProvider, error) {
	child, err := entities.NewTopic(name)
	if err != nil {
		return nil, err
	}
	if child.URI() == p.URI() {
		return nil, apperrors.NewSelfReferentialError("topic " + p.Name() + " cannot be its own child")
	}

	unlock, err := p.service.lockPair(ctx, p.URI(), child.URI())
	if err != nil {
		return nil, err
	}
	defer unlock()

	links, err := p.service.links.GetAllLinks(ctx, p.URI())
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		if l.IsChildOf(child.URI(), p.URI()) {
			return nil, apperrors.NewDuplicateRelationError(fmt.Sprintf("%q is already a child of %q", child.Name(), p.Name()))
		}
	}
	cycle, err := p.service.isAncestor(ctx, child.URI(), p.URI())
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, apperrors.NewDuplicateRelationError(fmt.Sprintf("%q is an ancestor of %q", child.Name(), p.Name())).
			WithCode(CodeHierarchyCycle)
	}

	handle, err := p.service.findOrCreate(ctx, child)
	if err != nil {
		return nil, err
	}
	if _, err := p.service.links.Create(ctx, p.topic, handle.topic, entities.LinkKindHierarchy, entities.LinkOptions{}); err != nil {
		return nil, err
	}
	return handle, nil
}

// GetChild returns the immediate child with this name
func (p *TopicProvider) GetChild(ctx context.Context, name string) (*TopicProvider, bool, error) {
	children, err := p.Children(ctx)
	if err != nil {
		return nil, false, err
	}
	name = strings.TrimSpace(name)
	for _, c := range children {
		if c.Name() == name {
			return c, true, nil
		}
	}
	return nil, false, nil
}

// Children returns the topics this topic is the parent of
func (p *TopicProvider) Children(ctx context.Context) ([]*TopicProvider, error) {
	return p.neighbours(ctx, func(l *entities.Link) bool {
		return l.Kind() == entities.LinkKindHierarchy && l.EndpointA() == p.URI()
	})
}

// Parents returns the topics this topic is a child of
func (p *TopicProvider) Parents(ctx context.Context) ([]*TopicProvider, error) {
	return p.neighbours(ctx, func(l *entities.Link) bool {
		return l.Kind() == entities.LinkKindHierarchy && l.EndpointB() == p.URI()
	})
}

// Related returns the topics joined to this one by a related edge
func (p *TopicProvider) Related(ctx context.Context) ([]*TopicProvider, error) {
	return p.neighbours(ctx, func(l *entities.Link) bool {
		return l.Kind() == entities.LinkKindRelated
	})
}

// Unlink removes the first link of any kind between this topic and the
// named one. It returns the counterpart, or nil when nothing was linked.
func (p *TopicProvider) Unlink(ctx context.Context, name string) (*TopicProvider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("topic name is required")
	}
	other, err := p.service.load(ctx, entities.TopicURI(name))
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	link, err := p.linkWith(ctx, other.URI())
	if err != nil || link == nil {
		return nil, err
	}
	if err := p.service.links.Remove(ctx, link); err != nil {
		return nil, err
	}
	return other, nil
}

// MergeResult summarizes a merge
type MergeResult struct {
	Target  *TopicProvider
	Moved   int
	Dropped int
}

// Merge moves every link of this topic onto the named topic and retires this one.
// Links that would become self-loops, duplicates or hierarchy cycles are dropped.
func (p *TopicProvider) Merge(ctx context.Context, intoName string) (*MergeResult, error) {
	target, err := entities.NewTopic(intoName)
	if err != nil {
		return nil, err
	}
	if target.URI() == p.URI() {
		return nil, apperrors.NewSelfReferentialError("topic " + p.Name() + " cannot be merged into itself")
	}

	unlock, err := p.service.lockPair(ctx, p.URI(), target.URI())
	if err != nil {
		return nil, err
	}
	defer unlock()

	into, err := p.service.findOrCreate(ctx, target)
	if err != nil {
		return nil, err
	}

	own, err := p.service.links.GetAllLinks(ctx, p.URI())
	if err != nil {
		return nil, err
	}
	existing, err := p.service.links.GetAllLinks(ctx, into.URI())
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Target: into}
	for _, l := range own {
		keep, err := p.canMove(ctx, l, into, existing)
		if err != nil {
			return nil, err
		}
		if !keep {
			if err := p.service.links.Remove(ctx, l); err != nil {
				return nil, err
			}
			result.Dropped++
			p.service.logger.Warn("Dropped link while merging",
				zap.String("from", p.Name()),
				zap.String("into", into.Name()),
				zap.String("linkID", l.ID()),
				zap.String("kind", string(l.Kind())),
				zap.String("other", l.Other(p.URI())),
			)
			continue
		}

		if err := l.Reassign(p.URI(), into.URI()); err != nil {
			return nil, err
		}
		if err := p.service.links.Save(ctx, l); err != nil {
			return nil, err
		}
		existing = append(existing, l)
		result.Moved++
	}

	if err := p.service.store.Remove(ctx, p.URI()); err != nil {
		return nil, fmt.Errorf("failed to remove merged topic %q: %w", p.Name(), err)
	}
	p.service.index.Delete(p.Name())

	p.service.logger.Info("Topics merged",
		zap.String("from", p.Name()),
		zap.String("into", into.Name()),
		zap.Int("moved", result.Moved),
		zap.Int("dropped", result.Dropped),
	)
	return result, nil
}

// canMove reports whether l can be reassigned from p to into without
// producing a self-loop or a hierarchy cycle. A pair already joined by a
// link of any kind is a duplicate.
func (p *TopicProvider) canMove(ctx context.Context, l *entities.Link, into *TopicProvider, existing []*entities.Link) (bool, error) {
	other := l.Other(p.URI())
	if other == into.URI() {
		return false, nil
	}
	for _, e := range existing {
		if e.Connects(into.URI(), other) {
			return false, nil
		}
	}
	if l.Kind() != entities.LinkKindHierarchy {
		return true, nil
	}

	var (
		cycle bool
		err   error
	)
	if l.EndpointA() == p.URI() {
		// into becomes the parent of other
		cycle, err = p.service.isAncestor(ctx, other, into.URI())
	} else {
		// other becomes the parent of into
		cycle, err = p.service.isAncestor(ctx, into.URI(), other)
	}
	return !cycle, err
}

// ResourceLink is a non-topic entity annotated by a topic
type ResourceLink struct {
	LinkID  string            `json:"link_id"`
	Entity  entities.Snapshot `json:"entity"`
	Rate    *float64          `json:"rate,omitempty"`
	Comment *string           `json:"comment,omitempty"`
	Quote   *string           `json:"quote,omitempty"`
}

// TopicResources groups the annotated entities of a topic by kind
type TopicResources struct {
	Records     []ResourceLink `json:"records"`
	ItemsRanges []ResourceLink `json:"items_ranges"`
	Other       []ResourceLink `json:"other"`
}

// Resources aggregates every non-topic entity this topic annotates
func (p *TopicProvider) Resources(ctx context.Context) (*TopicResources, error) {
	links, err := p.service.links.GetAllLinks(ctx, p.URI())
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = &TopicResources{
			Records:     []ResourceLink{},
			ItemsRanges: []ResourceLink{},
			Other:       []ResourceLink{},
		}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, l := range links {
		if l.Kind() != entities.LinkKindResource || l.EndpointA() != p.URI() {
			continue
		}
		l := l
		g.Go(func() error {
			uri := l.EndpointB()
			kind, _ := entities.KindOfURI(uri)
			entity, err := p.service.store.Get(gctx, kind, uri)
			if apperrors.IsNotFound(err) {
				p.service.logger.Warn("Resource link points to a missing entity", zap.String("linkID", l.ID()), zap.String("uri", uri))
				return nil
			}
			if err != nil {
				return err
			}

			rl := ResourceLink{
				LinkID:  l.ID(),
				Entity:  entity.Snapshot(),
				Rate:    l.Rate(),
				Comment: l.Comment(),
				Quote:   l.Quote(),
			}
			mu.Lock()
			defer mu.Unlock()
			switch entity.Kind() {
			case entities.KindRecord:
				out.Records = append(out.Records, rl)
			case entities.KindItemsRange:
				out.ItemsRanges = append(out.ItemsRanges, rl)
			default:
				out.Other = append(out.Other, rl)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// linkWith returns the first link joining this topic and uri, or nil
func (p *TopicProvider) linkWith(ctx context.Context, uri string) (*entities.Link, error) {
	link, err := p.service.links.GetByEndpoints(ctx, p.URI(), uri)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return link, err
}

func (p *TopicProvider) neighbours(ctx context.Context, match func(*entities.Link) bool) ([]*TopicProvider, error) {
	links, err := p.service.links.GetAllLinks(ctx, p.URI())
	if err != nil {
		return nil, err
	}

	out := make([]*TopicProvider, 0, len(links))
	for _, l := range links {
		if !match(l) {
			continue
		}
		other, err := p.service.load(ctx, l.Other(p.URI()))
		if apperrors.IsNotFound(err) {
			p.service.logger.Warn("Link points to a missing topic", zap.String("linkID", l.ID()))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, other)
	}
	return out, nil
}

// isAncestor reports whether candidate is reachable from uri by walking parent links
func (s *TopicService) isAncestor(ctx context.Context, candidate, uri string) (bool, error) {
	visited := map[string]bool{uri: true}
	queue := []string{uri}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		links, err := s.links.GetAllLinks(ctx, current)
		if err != nil {
			return false, err
		}
		for _, l := range links {
			if l.Kind() != entities.LinkKindHierarchy || l.EndpointB() != current {
				continue
			}
			parent := l.EndpointA()
			if parent == candidate {
				return true, nil
			}
			if !visited[parent] {
				visited[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return false, nil
}
