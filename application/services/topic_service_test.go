package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/infrastructure/persistence/memory"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store  *memory.Store
	links  *LinkService
	topics *TopicService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	links := NewLinkService(store, logger)
	index := NewTopicIndex(store, logger)
	topics := NewTopicService(store, links, index, memory.NewKeyedLocker(), nil, TopicServiceConfig{}, logger)
	return &fixture{store: store, links: links, topics: topics}
}

func names(t *testing.T, providers []*TopicProvider) []string {
	t.Helper()
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.Name())
	}
	sort.Strings(out)
	return out
}

func TestFindOrCreate_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.topics.FindOrCreate(ctx, "Moon")
	require.NoError(t, err)
	second, err := f.topics.FindOrCreate(ctx, " Moon ")
	require.NoError(t, err)

	assert.Equal(t, first.URI(), second.URI())

	all, err := f.store.GetLike(ctx, entities.KindTopic, "name", "%", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.topics.FindOrCreate(ctx, "  ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestFindOrCreate_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.topics.FindOrCreate(ctx, "Sun")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := f.store.GetLike(ctx, entities.KindTopic, "name", "%", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.topics.GetByName(ctx, "Mars", false)
	assert.True(t, apperrors.IsNotFound(err))

	created, err := f.topics.GetByName(ctx, "Mars", true)
	require.NoError(t, err)

	found, err := f.topics.GetByName(ctx, "Mars", false)
	require.NoError(t, err)
	assert.Equal(t, created.URI(), found.URI())

	ok, err := f.topics.Exist(ctx, "Mars")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.topics.FindOrCreate(ctx, "A")
	require.NoError(t, err)

	b, err := a.AddChild(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", b.Name())

	_, err = a.AddChild(ctx, "B")
	assert.True(t, apperrors.IsDuplicateRelation(err), "second addChild must fail, got %v", err)

	children, err := a.Children(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(t, children))

	parents, err := b.Parents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(t, parents))

	child, ok, err := a.GetChild(ctx, "B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.URI(), child.URI())

	_, ok, err = a.GetChild(ctx, "C")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.AddChild(ctx, "A")
	assert.True(t, apperrors.IsSelfReferential(err))
}

func TestAddChild_RejectsCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.topics.FindOrCreate(ctx, "A")
	b, err := a.AddChild(ctx, "B")
	require.NoError(t, err)
	c, err := b.AddChild(ctx, "C")
	require.NoError(t, err)

	_, err = c.AddChild(ctx, "A")
	require.True(t, apperrors.IsDuplicateRelation(err))
	assert.Equal(t, CodeHierarchyCycle, apperrors.GetAppError(err).Code)

	children, err := c.Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestLink_Related(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sun, _ := f.topics.FindOrCreate(ctx, "Sun")
	moon, _ := f.topics.FindOrCreate(ctx, "Moon")

	_, err := sun.Link(ctx, moon)
	require.NoError(t, err)
	_, err = moon.Link(ctx, sun)
	assert.True(t, apperrors.IsDuplicateRelation(err), "related edges are symmetric")
	_, err = sun.Link(ctx, sun)
	assert.True(t, apperrors.IsSelfReferential(err))

	related, err := moon.Related(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sun"}, names(t, related))
}

func TestUnlink_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.topics.FindOrCreate(ctx, "A")
	_, err := a.AddChild(ctx, "B")
	require.NoError(t, err)

	removed, err := a.Unlink(ctx, "B")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, "B", removed.Name())

	removed, err = a.Unlink(ctx, "B")
	require.NoError(t, err)
	assert.Nil(t, removed)

	removed, err = a.Unlink(ctx, "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.topics.FindOrCreate(ctx, "A")
	_, err := a.AddChild(ctx, "X")
	require.NoError(t, err)
	_, err = a.AddChild(ctx, "Y")
	require.NoError(t, err)
	z, _ := f.topics.FindOrCreate(ctx, "Z")
	_, err = z.AddChild(ctx, "A")
	require.NoError(t, err)

	result, err := a.Merge(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Moved)
	assert.Zero(t, result.Dropped)

	b, err := f.topics.GetByName(ctx, "B", false)
	require.NoError(t, err)
	children, err := b.Children(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, names(t, children))
	parents, err := b.Parents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z"}, names(t, parents))

	exists, err := f.topics.Exist(ctx, "A")
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = f.topics.GetByName(ctx, "A", false)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMerge_DropsDuplicatesAndSelfLoops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.topics.FindOrCreate(ctx, "A")
	b, _ := f.topics.FindOrCreate(ctx, "B")
	_, err := a.AddChild(ctx, "X")
	require.NoError(t, err)
	_, err = b.AddChild(ctx, "X")
	require.NoError(t, err)
	_, err = a.Link(ctx, b)
	require.NoError(t, err)

	result, err := a.Merge(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Moved)
	assert.Equal(t, 2, result.Dropped)

	children, err := b.Children(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, names(t, children))

	related, err := b.Related(ctx)
	require.NoError(t, err)
	assert.Empty(t, related)

	_, err = b.Merge(ctx, "B")
	assert.True(t, apperrors.IsSelfReferential(err))
}

func TestMerge_KeepsOneLinkPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// B is already X's parent, so A's related link to X has nowhere to go
	b, _ := f.topics.FindOrCreate(ctx, "B")
	x, err := b.AddChild(ctx, "X")
	require.NoError(t, err)
	a, _ := f.topics.FindOrCreate(ctx, "A")
	_, err = a.Link(ctx, x)
	require.NoError(t, err)

	result, err := a.Merge(ctx, "B")
	require.NoError(t, err)
	assert.Zero(t, result.Moved)
	assert.Equal(t, 1, result.Dropped)

	links, err := f.links.GetAllLinks(ctx, x.URI())
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, entities.LinkKindHierarchy, links[0].Kind())

	related, err := b.Related(ctx)
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestMerge_DropsCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// X -> Y -> B and A -> X: moving A's child link onto B would make X both ancestor and child of B
	x, _ := f.topics.FindOrCreate(ctx, "X")
	y, err := x.AddChild(ctx, "Y")
	require.NoError(t, err)
	_, err = y.AddChild(ctx, "B")
	require.NoError(t, err)
	a, _ := f.topics.FindOrCreate(ctx, "A")
	_, err = a.AddChild(ctx, "X")
	require.NoError(t, err)

	result, err := a.Merge(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped)
	assert.Zero(t, result.Moved)

	b, err := f.topics.GetByName(ctx, "B", false)
	require.NoError(t, err)
	children, err := b.Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestResourceLink_RateUpdatePreservesComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	topic, _ := f.topics.FindOrCreate(ctx, "Moon")
	rng, err := entities.NewItemsRange("1.0001", "1.0005", "")
	require.NoError(t, err)
	require.NoError(t, f.store.Save(ctx, rng))

	comment, rate := "c", 0.5
	_, err = topic.LinkResource(ctx, rng, entities.LinkOptions{Comment: &comment, Rate: &rate})
	require.NoError(t, err)

	_, err = topic.LinkResource(ctx, rng, entities.LinkOptions{})
	assert.True(t, apperrors.IsDuplicateRelation(err))

	link, err := f.links.GetByEndpoints(ctx, rng.URI(), topic.URI())
	require.NoError(t, err)
	newRate := 0.9
	_, err = f.links.Updater(link).Rate(&newRate).Commit(ctx)
	require.NoError(t, err)

	reread, err := f.links.GetByEndpoints(ctx, topic.URI(), rng.URI())
	require.NoError(t, err)
	require.NotNil(t, reread.Rate())
	require.NotNil(t, reread.Comment())
	assert.Equal(t, 0.9, *reread.Rate())
	assert.Equal(t, "c", *reread.Comment())

	res, err := topic.Resources(ctx)
	require.NoError(t, err)
	require.Len(t, res.ItemsRanges, 1)
	assert.Equal(t, rng.URI(), res.ItemsRanges[0].Entity.URI)
	assert.Empty(t, res.Records)

	linked, err := f.topics.TopicsFor(ctx, rng.URI())
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "Moon", linked[0].Name)

	removed, err := topic.UnlinkResource(ctx, rng.URI())
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = topic.UnlinkResource(ctx, rng.URI())
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLinkResource_RequiresExistingNonTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	topic, _ := f.topics.FindOrCreate(ctx, "Moon")
	other, _ := f.topics.FindOrCreate(ctx, "Sun")

	_, err := topic.LinkResource(ctx, other.Topic(), entities.LinkOptions{})
	assert.True(t, apperrors.IsValidation(err))

	rec, _ := entities.NewRecord(entities.RecordParams{Code: "missing"})
	_, err = topic.LinkResource(ctx, rec, entities.LinkOptions{})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := f.topics.FindOrCreate(ctx, fmt.Sprintf("Full Moon %02d", i))
		require.NoError(t, err)
	}
	for _, n := range []string{"Sun", "Mars", "moonlight"} {
		_, err := f.topics.FindOrCreate(ctx, n)
		require.NoError(t, err)
	}

	got, err := f.topics.Suggest(ctx, "moon")
	require.NoError(t, err)
	assert.Len(t, got, DefaultSuggestLimit)
	for _, n := range got {
		assert.Contains(t, strings.ToLower(n), "moon")
	}
	assert.Contains(t, got, "Full Moon 00", "names are returned as stored")

	none, err := f.topics.Suggest(ctx, "jupiter")
	require.NoError(t, err)
	assert.Empty(t, none)
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Broadcast(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockBroadcaster) Subscribe(ctx context.Context, fn func()) error {
	args := m.Called(ctx, fn)
	fn()
	return args.Error(0)
}

func TestReload(t *testing.T) {
	logger := zap.NewNop()
	store := memory.NewStore()
	index := NewTopicIndex(store, logger)
	broadcaster := new(mockBroadcaster)
	broadcaster.On("Broadcast", mock.Anything).Return(errors.New("redis down")).Once()
	topics := NewTopicService(store, NewLinkService(store, logger), index, memory.NewKeyedLocker(), broadcaster, TopicServiceConfig{SuggestLimit: 5}, logger)
	ctx := context.Background()

	_, err := topics.FindOrCreate(ctx, "Moon")
	require.NoError(t, err)
	n, err := index.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// an offline import writes straight to the store
	sun, _ := entities.NewTopic("Sun")
	require.NoError(t, store.Save(ctx, sun))
	ok, err := topics.Exist(ctx, "Sun")
	require.NoError(t, err)
	assert.False(t, ok, "index is stale until reload")

	require.NoError(t, topics.Reload(ctx), "broadcast failures are not fatal")
	ok, err = topics.Exist(ctx, "Sun")
	require.NoError(t, err)
	assert.True(t, ok)

	broadcaster.AssertExpectations(t)
}
