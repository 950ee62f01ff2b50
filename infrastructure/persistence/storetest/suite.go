// Package storetest holds the behaviour every ports.Store driver must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// Run exercises a store created fresh for every subtest
func Run(t *testing.T, newStore func(t *testing.T) ports.Store) {
	t.Run("EntityLifecycle", func(t *testing.T) { testEntityLifecycle(t, newStore(t)) })
	t.Run("GetLike", func(t *testing.T) { testGetLike(t, newStore(t)) })
	t.Run("Links", func(t *testing.T) { testLinks(t, newStore(t)) })
	t.Run("PendingActions", func(t *testing.T) { testPending(t, newStore(t)) })
	t.Run("ConcurrentTransition", func(t *testing.T) { testConcurrentTransition(t, newStore(t)) })
}

func testEntityLifecycle(t *testing.T, s ports.Store) {
	ctx := context.Background()

	topic, err := entities.NewTopic("Луна")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, topic))

	got, err := s.Get(ctx, entities.KindTopic, topic.URI())
	require.NoError(t, err)
	assert.Equal(t, "Луна", got.Title())

	_, err = s.Get(ctx, entities.KindRecord, topic.URI())
	assert.True(t, apperrors.IsNotFound(err), "kind mismatch must read as absent")

	rng, err := entities.NewItemsRange("1.0001", "1.0010", "first")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, rng))
	rng.SetDescription("second")
	require.NoError(t, s.Save(ctx, rng))

	back, err := s.Get(ctx, entities.KindItemsRange, rng.URI())
	require.NoError(t, err)
	assert.Equal(t, "second", back.(*entities.ItemsRange).Description())

	require.NoError(t, s.Remove(ctx, topic.URI()))
	require.NoError(t, s.Remove(ctx, topic.URI()), "remove is idempotent")
	_, err = s.Get(ctx, "", topic.URI())
	assert.True(t, apperrors.IsNotFound(err))
}

func testGetLike(t *testing.T, s ports.Store) {
	ctx := context.Background()
	for _, name := range []string{"Полная Луна", "луна", "Солнце", "50% off"} {
		topic, err := entities.NewTopic(name)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, topic))
	}

	names := func(uids []entities.UID) []string {
		out := make([]string, len(uids))
		for i, u := range uids {
			out[i] = u.Title()
		}
		return out
	}

	got, err := s.GetLike(ctx, entities.KindTopic, "name", ports.ContainsPattern("ЛУНА"), 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Полная Луна", "луна"}, names(got))

	got, err = s.GetLike(ctx, entities.KindTopic, "name", ports.ContainsPattern("%"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"50% off"}, names(got))

	got, err = s.GetLike(ctx, entities.KindTopic, "name", "%", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.GetLike(ctx, entities.KindRecord, "name", "%", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testLinks(t *testing.T, s ports.Store) {
	ctx := context.Background()
	a, b, c := entities.TopicURI("a"), entities.TopicURI("b"), entities.TopicURI("c")

	rate, comment := 4.5, "good"
	first, err := entities.NewLink(entities.LinkKindResource, a, b, entities.LinkOptions{Rate: &rate, Comment: &comment})
	require.NoError(t, err)
	require.NoError(t, s.SaveLink(ctx, first))

	time.Sleep(time.Millisecond)
	second, err := entities.NewLink(entities.LinkKindRelated, c, a, entities.LinkOptions{})
	require.NoError(t, err)
	require.NoError(t, s.SaveLink(ctx, second))

	got, err := s.GetLink(ctx, first.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(first.Record(), got.Record(), cmpopts.EquateApproxTime(time.Microsecond)); diff != "" {
		t.Errorf("GetLink() mismatch (-want +got):\n%s", diff)
	}

	of, err := s.LinksOf(ctx, a)
	require.NoError(t, err)
	require.Len(t, of, 2)
	assert.Equal(t, first.ID(), of[0].ID(), "oldest first")

	// Reassignment moves the link off its old endpoint
	require.NoError(t, second.Reassign(c, b))
	require.NoError(t, s.SaveLink(ctx, second))
	of, err = s.LinksOf(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, of)
	of, err = s.LinksOf(ctx, b)
	require.NoError(t, err)
	assert.Len(t, of, 2)

	require.NoError(t, s.RemoveLink(ctx, first.ID()))
	require.NoError(t, s.RemoveLink(ctx, first.ID()))
	_, err = s.GetLink(ctx, first.ID())
	assert.True(t, apperrors.IsNotFound(err))
}

func testPending(t *testing.T, s ports.Store) {
	ctx := context.Background()

	pa := entities.NewPendingAction("topic_merge", "topic.merge", []byte(`{"main":"a"}`), "alice")
	require.NoError(t, s.CreatePending(ctx, pa))
	assert.True(t, apperrors.IsConflict(s.CreatePending(ctx, pa)), "duplicate id")

	got, err := s.GetPending(ctx, pa.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"main":"a"}`, string(got.Payload))
	assert.Equal(t, "alice", got.Actor)

	listed, err := s.ListPending(ctx, entities.PendingStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	moved, err := s.TransitionPending(ctx, pa.ID, entities.PendingStatusPending, entities.PendingStatusApproved, "mod", "")
	require.NoError(t, err)
	assert.Equal(t, entities.PendingStatusApproved, moved.Status)
	assert.Equal(t, "mod", moved.Moderator)

	_, err = s.TransitionPending(ctx, pa.ID, entities.PendingStatusPending, entities.PendingStatusRejected, "mod", "")
	assert.True(t, apperrors.IsConflict(err))

	_, err = s.TransitionPending(ctx, "missing", entities.PendingStatusPending, entities.PendingStatusRejected, "mod", "")
	assert.True(t, apperrors.IsNotFound(err))

	listed, err = s.ListPending(ctx, entities.PendingStatusPending, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)
	listed, err = s.ListPending(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func testConcurrentTransition(t *testing.T, s ports.Store) {
	ctx := context.Background()
	pa := entities.NewPendingAction("topic_add_child", "topic.add_child", []byte(`{}`), "")
	require.NoError(t, s.CreatePending(ctx, pa))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TransitionPending(ctx, pa.ID, entities.PendingStatusPending, entities.PendingStatusApproved, "mod", "")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
