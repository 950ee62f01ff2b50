package commands

import (
	"context"
	"testing"

	"github.com/VadimShubkin/ii/application/commands/bus"
	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/application/services"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/infrastructure/persistence/memory"
	"github.com/VadimShubkin/ii/pkg/common"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	store  *memory.Store
	topics *services.TopicService
	gate   *moderation.Gate
	bus    *bus.CommandBus
}

func newHarness(t *testing.T, policy moderation.Policy) *harness {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	links := services.NewLinkService(store, logger)
	topics := services.NewTopicService(store, links, services.NewTopicIndex(store, logger), memory.NewKeyedLocker(), nil, services.TopicServiceConfig{}, logger)
	gate := moderation.NewGate(policy, store, nil, nil, logger)

	b := bus.NewCommandBus(bus.LoggingMiddleware(logger))
	require.NoError(t, NewHandlers(topics, store, gate, logger).Register(b))
	gate.SetReplayer(b)

	return &harness{store: store, topics: topics, gate: gate, bus: b}
}

func (h *harness) send(t *testing.T, ctx context.Context, cmd bus.Command) (*moderation.Outcome, error) {
	t.Helper()
	result, err := h.bus.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	outcome, ok := result.(*moderation.Outcome)
	require.True(t, ok, "gated commands return an outcome, got %T", result)
	return outcome, nil
}

func (h *harness) childCount(t *testing.T, parent string) int {
	t.Helper()
	links, err := h.store.LinksOf(context.Background(), entities.TopicURI(parent))
	require.NoError(t, err)
	n := 0
	for _, l := range links {
		if l.Kind() == entities.LinkKindHierarchy && l.EndpointA() == entities.TopicURI(parent) {
			n++
		}
	}
	return n
}

func TestAddChild_PendingUntilApproved(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionQueue))
	ctx := context.Background()

	outcome, err := h.send(t, ctx, AddChildCommand{Name: "A", Child: "B"})
	require.NoError(t, err)
	require.True(t, outcome.Pending())
	assert.Equal(t, moderation.ActionTopicAddChild, outcome.Action)
	assert.Zero(t, h.childCount(t, "A"), "no edge before approval")

	exists, err := h.topics.Exist(ctx, "A")
	require.NoError(t, err)
	assert.False(t, exists, "nothing was written while pending")

	pa, err := h.gate.Approve(ctx, outcome.PendingID, "moderator")
	require.NoError(t, err)
	assert.Equal(t, entities.PendingStatusApplied, pa.Status)
	assert.Equal(t, 1, h.childCount(t, "A"))

	_, err = h.gate.Approve(ctx, outcome.PendingID, "moderator")
	assert.True(t, apperrors.IsConflict(err), "second approval must not replay")
	assert.Equal(t, 1, h.childCount(t, "A"))
}

func TestReject_NeverReplays(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionQueue))
	ctx := context.Background()

	outcome, err := h.send(t, ctx, AddChildCommand{Name: "A", Child: "B"})
	require.NoError(t, err)

	pa, err := h.gate.Reject(ctx, outcome.PendingID, "moderator")
	require.NoError(t, err)
	assert.Equal(t, entities.PendingStatusRejected, pa.Status)

	_, err = h.gate.Approve(ctx, outcome.PendingID, "moderator")
	assert.True(t, apperrors.IsConflict(err))
	assert.Zero(t, h.childCount(t, "A"))
}

func TestApprove_DuplicateReplayCountsAsApplied(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionQueue))
	ctx := context.Background()

	first, err := h.send(t, ctx, AddChildCommand{Name: "A", Child: "B"})
	require.NoError(t, err)
	second, err := h.send(t, ctx, AddChildCommand{Name: "A", Child: "B"})
	require.NoError(t, err)

	_, err = h.gate.Approve(ctx, first.PendingID, "moderator")
	require.NoError(t, err)
	pa, err := h.gate.Approve(ctx, second.PendingID, "moderator")
	require.NoError(t, err)
	assert.Equal(t, entities.PendingStatusApplied, pa.Status)
	assert.NotEmpty(t, pa.Error)
	assert.Equal(t, 1, h.childCount(t, "A"))
}

func TestApprove_FailedReplayIsRecorded(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionQueue))
	ctx := context.Background()

	outcome, err := h.send(t, ctx, UnlinkTopicCommand{Name: "Missing", Linked: "B"})
	require.NoError(t, err)

	pa, err := h.gate.Approve(ctx, outcome.PendingID, "moderator")
	require.NoError(t, err)
	assert.Equal(t, entities.PendingStatusFailed, pa.Status)
	assert.Contains(t, pa.Error, "not found")
}

func TestRejectPolicy(t *testing.T) {
	h := newHarness(t, moderation.StaticPolicy(moderation.DecisionReject))

	_, err := h.send(t, context.Background(), AddRelatedCommand{Name: "A", Related: "B"})
	assert.True(t, apperrors.IsModerationRejected(err))

	pending, err := h.gate.List(context.Background(), entities.PendingStatusPending, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTrustedRoleBypassesQueue(t *testing.T) {
	policy, err := moderation.NewRulePolicy(moderation.PolicyConfig{
		Default:      moderation.DecisionQueue,
		TrustedRoles: []string{"moderator"},
	})
	require.NoError(t, err)
	h := newHarness(t, policy)

	ctx := common.WithUserRoles(context.Background(), []string{"moderator"})
	outcome, err := h.send(t, ctx, AddChildCommand{Name: "A", Child: "B"})
	require.NoError(t, err)
	assert.False(t, outcome.Pending())
	assert.Equal(t, 1, h.childCount(t, "A"))
}

func TestLinkItemsRange_NestedCheck(t *testing.T) {
	policy, err := moderation.NewRulePolicy(moderation.PolicyConfig{
		Default: moderation.DecisionAllow,
		Rules: map[moderation.Action]moderation.Decision{
			moderation.ActionItemsRangeCreate: moderation.DecisionQueue,
		},
	})
	require.NoError(t, err)
	h := newHarness(t, policy)
	ctx := context.Background()

	rate := 0.5
	cmd := LinkItemsRangeCommand{From: "1.0001", To: "1.0003", TopicName: "Moon", RangeName: "intro", Rate: &rate}
	outcome, err := h.send(t, ctx, cmd)
	require.NoError(t, err)
	require.True(t, outcome.Pending(), "creating the range needs approval")

	_, err = h.store.Get(ctx, entities.KindItemsRange, entities.ItemsRangeURI("1.0001", "1.0003"))
	assert.True(t, apperrors.IsNotFound(err))

	pa, err := h.gate.Approve(ctx, outcome.PendingID, "moderator")
	require.NoError(t, err)
	require.Equal(t, entities.PendingStatusApplied, pa.Status, pa.Error)

	moon, err := h.topics.GetByName(ctx, "Moon", false)
	require.NoError(t, err)
	res, err := moon.Resources(ctx)
	require.NoError(t, err)
	require.Len(t, res.ItemsRanges, 1)
	assert.Equal(t, "intro", res.ItemsRanges[0].Entity.Name)

	// the range exists now, so a second topic links without approval
	outcome, err = h.send(t, ctx, LinkItemsRangeCommand{From: "1.0001", To: "1.0003", TopicName: "Sun"})
	require.NoError(t, err)
	assert.False(t, outcome.Pending())
}
