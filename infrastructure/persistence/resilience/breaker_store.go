// Package resilience guards a store driver with a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// BreakerConfig holds configuration for the circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the default circuit breaker configuration
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerStore decorates a ports.Store. Only infrastructure failures count
// against the breaker; domain outcomes such as NotFound pass through.
type BreakerStore struct {
	next   ports.Store
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

var _ ports.Store = (*BreakerStore)(nil)

// NewBreakerStore wraps next with a circuit breaker
func NewBreakerStore(next ports.Store, config BreakerConfig, logger *zap.Logger) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: isSuccessful,
	})

	return &BreakerStore{next: next, cb: cb, logger: logger}
}

// State reports the breaker state, for readiness checks
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// isSuccessful treats domain errors as successful calls
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		return false
	}
	switch appErr.Type {
	case apperrors.ErrorTypeDatabase, apperrors.ErrorTypeUnavailable, apperrors.ErrorTypeInternal:
		return false
	}
	return true
}

func call[T any](s *BreakerStore, fn func() (T, error)) (T, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, apperrors.NewUnavailableError("store").WithCause(err)
	}
	v, _ := out.(T)
	return v, err
}

func exec(s *BreakerStore, fn func() error) error {
	_, err := call(s, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (s *BreakerStore) Get(ctx context.Context, kind entities.Kind, uri string) (entities.UID, error) {
	return call(s, func() (entities.UID, error) { return s.next.Get(ctx, kind, uri) })
}

func (s *BreakerStore) GetLike(ctx context.Context, kind entities.Kind, field, pattern string, limit int) ([]entities.UID, error) {
	return call(s, func() ([]entities.UID, error) { return s.next.GetLike(ctx, kind, field, pattern, limit) })
}

func (s *BreakerStore) Save(ctx context.Context, entity entities.UID) error {
	return exec(s, func() error { return s.next.Save(ctx, entity) })
}

func (s *BreakerStore) Remove(ctx context.Context, uri string) error {
	return exec(s, func() error { return s.next.Remove(ctx, uri) })
}

func (s *BreakerStore) SaveLink(ctx context.Context, link *entities.Link) error {
	return exec(s, func() error { return s.next.SaveLink(ctx, link) })
}

func (s *BreakerStore) GetLink(ctx context.Context, id string) (*entities.Link, error) {
	return call(s, func() (*entities.Link, error) { return s.next.GetLink(ctx, id) })
}

func (s *BreakerStore) LinksOf(ctx context.Context, uri string) ([]*entities.Link, error) {
	return call(s, func() ([]*entities.Link, error) { return s.next.LinksOf(ctx, uri) })
}

func (s *BreakerStore) RemoveLink(ctx context.Context, id string) error {
	return exec(s, func() error { return s.next.RemoveLink(ctx, id) })
}

func (s *BreakerStore) CreatePending(ctx context.Context, action *entities.PendingAction) error {
	return exec(s, func() error { return s.next.CreatePending(ctx, action) })
}

func (s *BreakerStore) GetPending(ctx context.Context, id string) (*entities.PendingAction, error) {
	return call(s, func() (*entities.PendingAction, error) { return s.next.GetPending(ctx, id) })
}

func (s *BreakerStore) ListPending(ctx context.Context, status entities.PendingStatus, limit int) ([]*entities.PendingAction, error) {
	return call(s, func() ([]*entities.PendingAction, error) { return s.next.ListPending(ctx, status, limit) })
}

func (s *BreakerStore) TransitionPending(ctx context.Context, id string, from, to entities.PendingStatus, moderator, note string) (*entities.PendingAction, error) {
	return call(s, func() (*entities.PendingAction, error) {
		return s.next.TransitionPending(ctx, id, from, to, moderator, note)
	})
}
