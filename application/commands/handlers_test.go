package commands

import (
	"context"
	"testing"

	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportTopics(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionAllow))
	ctx := context.Background()

	cmd := NewImportTopicsCommand("Moon\nSun\n\nMoon\r\n  Mars  \n")
	assert.Equal(t, []string{"Moon", "Sun", "Mars"}, cmd.Names)

	outcome, err := h.send(t, ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Imported: 3}, outcome.Result)

	for _, name := range []string{"Moon", "Sun", "Mars"} {
		ok, err := h.topics.Exist(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	_, err = h.bus.Send(ctx, NewImportTopicsCommand("\n\n"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestLinkResource_UpdateAndUnlink(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionAllow))
	ctx := context.Background()

	rec, err := entities.NewRecord(entities.RecordParams{Code: "2015-05-02", Name: "Lecture"})
	require.NoError(t, err)
	require.NoError(t, h.store.Save(ctx, rec))

	comment, rate := "c", 0.5
	_, err = h.send(t, ctx, LinkResourceCommand{URI: rec.URI(), TopicName: "Moon", Comment: &comment, Rate: &rate})
	require.NoError(t, err)

	_, err = h.send(t, ctx, LinkResourceCommand{URI: rec.URI(), TopicName: "Moon"})
	assert.True(t, apperrors.IsDuplicateRelation(err))

	newRate := 0.9
	_, err = h.send(t, ctx, UpdateRateCommand{ForURI: rec.URI(), TopicName: "Moon", Rate: &newRate})
	require.NoError(t, err)
	_, err = h.send(t, ctx, UpdateCommentCommand{ForURI: rec.URI(), TopicName: "Moon", Comment: "d"})
	require.NoError(t, err)

	linked, err := h.topics.TopicsFor(ctx, rec.URI())
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, 0.9, *linked[0].Rate)
	assert.Equal(t, "d", *linked[0].Comment)

	outcome, err := h.send(t, ctx, UnlinkResourceCommand{URI: rec.URI(), TopicURI: entities.TopicURI("Moon")})
	require.NoError(t, err)
	assert.Equal(t, &UnlinkResult{Removed: true, Linked: rec.URI()}, outcome.Result)

	outcome, err = h.send(t, ctx, UnlinkResourceCommand{URI: rec.URI(), TopicURI: entities.TopicURI("Moon")})
	require.NoError(t, err)
	assert.Equal(t, &UnlinkResult{}, outcome.Result)

	_, err = h.send(t, ctx, LinkResourceCommand{URI: "nowhere:1", TopicName: "Moon"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestMergeAndUnlinkTopics(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionAllow))
	ctx := context.Background()

	_, err := h.send(t, ctx, AddChildCommand{Name: "A", Child: "X"})
	require.NoError(t, err)
	_, err = h.send(t, ctx, AddRelatedCommand{Name: "A", Related: "R"})
	require.NoError(t, err)

	outcome, err := h.send(t, ctx, MergeTopicsCommand{Main: "A", MergeInto: "B"})
	require.NoError(t, err)
	assert.Equal(t, &MergeResult{Target: "B", Moved: 2}, outcome.Result)

	outcome, err = h.send(t, ctx, UnlinkTopicCommand{Name: "B", Linked: "R"})
	require.NoError(t, err)
	assert.Equal(t, &UnlinkResult{Removed: true, Linked: "R"}, outcome.Result)

	outcome, err = h.send(t, ctx, UnlinkTopicCommand{Name: "B", Linked: "R"})
	require.NoError(t, err)
	assert.Equal(t, &UnlinkResult{}, outcome.Result)

	_, err = h.send(t, ctx, MergeTopicsCommand{Main: "B", MergeInto: "B"})
	assert.True(t, apperrors.IsSelfReferential(err))
}

func TestBulkCommandsAreUnimplemented(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionAllow))

	_, err := h.bus.Send(context.Background(), BulkLinkResourcesCommand{})
	assert.True(t, apperrors.IsUnimplemented(err))
	_, err = h.bus.Send(context.Background(), BulkUnlinkResourcesCommand{TopicName: "A"})
	assert.True(t, apperrors.IsUnimplemented(err))
}
