package services

import (
	"context"
	"sync"
	"testing"

	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pausingStore holds the first full topic scan until release is closed
type pausingStore struct {
	*memory.Store
	scanned chan struct{}
	release chan struct{}
	once    sync.Once
}

func newPausingStore(store *memory.Store) *pausingStore {
	return &pausingStore{
		Store:   store,
		scanned: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *pausingStore) GetLike(ctx context.Context, kind entities.Kind, field, pattern string, limit int) ([]entities.UID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.Store.GetLike(ctx, kind, field, pattern, limit)
	if pattern == "%" {
		s.once.Do(func() {
			close(s.scanned)
			<-s.release
		})
	}
	return result, err
}

func newIndexedTopics(t *testing.T) (*TopicService, *pausingStore) {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	scans := newPausingStore(store)
	topics := NewTopicService(store, NewLinkService(store, logger), NewTopicIndex(scans, logger), memory.NewKeyedLocker(), nil, TopicServiceConfig{}, logger)
	return topics, scans
}

// rebuildAround starts an index rebuild, runs write while the rebuild
// holds its scan, then lets the rebuild finish
func rebuildAround(t *testing.T, topics *TopicService, scans *pausingStore, write func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := topics.Exist(context.Background(), "anything")
		assert.NoError(t, err)
	}()

	<-scans.scanned
	write()
	close(scans.release)
	<-done
}

func TestTopicIndex_CreateDuringRebuild(t *testing.T) {
	topics, scans := newIndexedTopics(t)
	ctx := context.Background()

	rebuildAround(t, topics, scans, func() {
		_, err := topics.FindOrCreate(ctx, "Fresh")
		require.NoError(t, err)
	})

	ok, err := topics.Exist(ctx, "Fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTopicIndex_MergeDuringRebuild(t *testing.T) {
	topics, scans := newIndexedTopics(t)
	ctx := context.Background()

	a, err := topics.FindOrCreate(ctx, "A")
	require.NoError(t, err)

	rebuildAround(t, topics, scans, func() {
		_, err := a.Merge(ctx, "B")
		require.NoError(t, err)
	})

	ok, err := topics.Exist(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = topics.Exist(ctx, "B")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTopicIndex_RebuildIgnoresCallerCancellation(t *testing.T) {
	logger := zap.NewNop()
	store := memory.NewStore()
	moon, err := entities.NewTopic("Moon")
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), moon))

	scans := newPausingStore(store)
	close(scans.release)
	index := NewTopicIndex(scans, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := index.Contains(ctx, "Moon")
	require.NoError(t, err)
	assert.True(t, ok)
}
