package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// Store provides an in-memory implementation of the persistence ports.
// It keeps copies of everything it is given so callers can't mutate stored state.
type Store struct {
	mu       sync.RWMutex
	entities map[string]entities.Snapshot
	links    map[string]entities.LinkRecord
	pending  map[string]entities.PendingAction
}

var _ ports.Store = (*Store)(nil)

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		entities: make(map[string]entities.Snapshot),
		links:    make(map[string]entities.LinkRecord),
		pending:  make(map[string]entities.PendingAction),
	}
}

// Get retrieves an entity by kind and URI
func (s *Store) Get(ctx context.Context, kind entities.Kind, uri string) (entities.UID, error) {
	s.mu.RLock()
	snap, ok := s.entities[uri]
	s.mu.RUnlock()

	if !ok || (kind != "" && snap.Kind != kind) {
		return nil, apperrors.NewNotFoundError(string(kind) + " " + uri)
	}
	return entities.FromSnapshot(cloneSnapshot(snap))
}

// GetLike retrieves entities of a kind whose field matches the pattern, ordered by name
func (s *Store) GetLike(ctx context.Context, kind entities.Kind, field, pattern string, limit int) ([]entities.UID, error) {
	s.mu.RLock()
	matched := make([]entities.Snapshot, 0)
	for _, snap := range s.entities {
		if snap.Kind != kind {
			continue
		}
		if ports.MatchLike(pattern, snap.Field(field)) {
			matched = append(matched, cloneSnapshot(snap))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].URI < matched[j].URI
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]entities.UID, 0, len(matched))
	for _, snap := range matched {
		uid, err := entities.FromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, nil
}

// Save upserts an entity
func (s *Store) Save(ctx context.Context, entity entities.UID) error {
	snap := entity.Snapshot()
	if snap.URI == "" {
		return apperrors.NewValidationError("entity uri is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entities[snap.URI]; ok && !prev.CreatedAt.IsZero() {
		snap.CreatedAt = prev.CreatedAt
	}
	s.entities[snap.URI] = cloneSnapshot(snap)
	return nil
}

// Remove deletes an entity
func (s *Store) Remove(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, uri)
	return nil
}

// SaveLink upserts a link by id
func (s *Store) SaveLink(ctx context.Context, link *entities.Link) error {
	rec := link.Record()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[rec.ID] = cloneLink(rec)
	return nil
}

// GetLink retrieves a link by id
func (s *Store) GetLink(ctx context.Context, id string) (*entities.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.links[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("link " + id)
	}
	return entities.ReconstructLink(cloneLink(rec)), nil
}

// LinksOf retrieves every link touching uri, oldest first
func (s *Store) LinksOf(ctx context.Context, uri string) ([]*entities.Link, error) {
	s.mu.RLock()
	recs := make([]entities.LinkRecord, 0)
	for _, rec := range s.links {
		if rec.EndpointA == uri || rec.EndpointB == uri {
			recs = append(recs, cloneLink(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})

	out := make([]*entities.Link, len(recs))
	for i, rec := range recs {
		out[i] = entities.ReconstructLink(rec)
	}
	return out, nil
}

// RemoveLink deletes a link
func (s *Store) RemoveLink(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, id)
	return nil
}

// CreatePending persists a new pending action
func (s *Store) CreatePending(ctx context.Context, action *entities.PendingAction) error {
	if action == nil || action.ID == "" {
		return apperrors.NewValidationError("pending action id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[action.ID]; exists {
		return apperrors.NewConflictError("pending action " + action.ID + " already exists")
	}
	s.pending[action.ID] = clonePending(*action)
	return nil
}

// GetPending retrieves a pending action by id
func (s *Store) GetPending(ctx context.Context, id string) (*entities.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pa, ok := s.pending[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("pending action " + id)
	}
	out := clonePending(pa)
	return &out, nil
}

// ListPending retrieves actions in a status, oldest first
func (s *Store) ListPending(ctx context.Context, status entities.PendingStatus, limit int) ([]*entities.PendingAction, error) {
	s.mu.RLock()
	out := make([]*entities.PendingAction, 0)
	for _, pa := range s.pending {
		if status != "" && pa.Status != status {
			continue
		}
		c := clonePending(pa)
		out = append(out, &c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TransitionPending moves an action between statuses under the store lock
func (s *Store) TransitionPending(ctx context.Context, id string, from, to entities.PendingStatus, moderator, note string) (*entities.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.pending[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("pending action " + id)
	}
	if pa.Status != from {
		return nil, apperrors.NewConflictError("pending action " + id + " is " + string(pa.Status) + ", not " + string(from))
	}
	pa.Status = to
	if moderator != "" {
		pa.Moderator = moderator
	}
	pa.Error = note
	pa.UpdatedAt = time.Now().UTC()
	s.pending[id] = pa

	out := clonePending(pa)
	return &out, nil
}

func cloneSnapshot(s entities.Snapshot) entities.Snapshot {
	if s.Fields != nil {
		fields := make(map[string]string, len(s.Fields))
		for k, v := range s.Fields {
			fields[k] = v
		}
		s.Fields = fields
	}
	return s
}

func cloneLink(r entities.LinkRecord) entities.LinkRecord {
	if r.Rate != nil {
		v := *r.Rate
		r.Rate = &v
	}
	if r.Comment != nil {
		v := *r.Comment
		r.Comment = &v
	}
	if r.Quote != nil {
		v := *r.Quote
		r.Quote = &v
	}
	return r
}

func clonePending(p entities.PendingAction) entities.PendingAction {
	if p.Payload != nil {
		p.Payload = append([]byte(nil), p.Payload...)
	}
	return p
}
