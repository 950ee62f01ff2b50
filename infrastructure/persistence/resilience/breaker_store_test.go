package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/infrastructure/persistence/memory"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// failingStore fails every entity read with a database error
type failingStore struct {
	ports.Store
	calls int
}

func (f *failingStore) Get(ctx context.Context, kind entities.Kind, uri string) (entities.UID, error) {
	f.calls++
	return nil, apperrors.NewDatabaseError("get", errors.New("connection reset"))
}

func testConfig() BreakerConfig {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	return cfg
}

func TestBreakerStore_TripsOnInfrastructureErrors(t *testing.T) {
	inner := &failingStore{Store: memory.NewStore()}
	store := NewBreakerStore(inner, testConfig(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.Get(ctx, entities.KindTopic, "x")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDatabase))
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())

	_, err := store.Get(ctx, entities.KindTopic, "x")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the store")
}

func TestBreakerStore_DomainErrorsPassThrough(t *testing.T) {
	store := NewBreakerStore(memory.NewStore(), testConfig(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Get(ctx, entities.KindTopic, "missing")
		assert.True(t, apperrors.IsNotFound(err))
	}
	assert.Equal(t, gobreaker.StateClosed, store.State())

	topic, _ := entities.NewTopic("moon")
	require.NoError(t, store.Save(ctx, topic))
	got, err := store.Get(ctx, entities.KindTopic, topic.URI())
	require.NoError(t, err)
	assert.Equal(t, "moon", got.Title())

	links, err := store.LinksOf(ctx, topic.URI())
	require.NoError(t, err)
	assert.Empty(t, links)
}
