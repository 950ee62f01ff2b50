package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/domain/events"
	"github.com/VadimShubkin/ii/infrastructure/persistence/memory"
	"github.com/VadimShubkin/ii/pkg/common"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sampleCommand struct {
	Name string `json:"name"`
}

func (c sampleCommand) Validate() error     { return nil }
func (c sampleCommand) CommandName() string { return "Sample" }
func (c sampleCommand) Action() Action      { return ActionTopicCreate }

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

type countingRecorder struct {
	decisions map[string]int
}

func (r *countingRecorder) RecordModeration(action, decision string) {
	r.decisions[action+"/"+decision]++
}

func TestRulePolicy_Decide(t *testing.T) {
	policy, err := NewRulePolicy(PolicyConfig{
		Default:      DecisionQueue,
		TrustedRoles: []string{"editor"},
		Rules: map[Action]Decision{
			ActionTopicCreate: DecisionAllow,
			ActionTopicMerge:  DecisionReject,
		},
	})
	require.NoError(t, err)

	anon := context.Background()
	editor := common.WithUserRoles(anon, []string{"reader", "editor"})

	tests := []struct {
		name   string
		ctx    context.Context
		action Action
		want   Decision
	}{
		{"rule allow", anon, ActionTopicCreate, DecisionAllow},
		{"rule reject", anon, ActionTopicMerge, DecisionReject},
		{"default", anon, ActionTopicAddChild, DecisionQueue},
		{"trusted role skips rules", editor, ActionTopicMerge, DecisionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Decide(tt.ctx, tt.action))
		})
	}

	require.NoError(t, policy.Update(PolicyConfig{Default: DecisionAllow}))
	assert.Equal(t, DecisionAllow, policy.Decide(anon, ActionTopicMerge))

	assert.Error(t, policy.Update(PolicyConfig{Default: "maybe"}))
	assert.Equal(t, DecisionAllow, policy.Decide(anon, ActionTopicMerge), "invalid update keeps old rules")

	_, err = NewRulePolicy(PolicyConfig{Default: DecisionAllow, Rules: map[Action]Decision{ActionTopicUnlink: "later"}})
	assert.Error(t, err)
}

func TestGate_CheckQueuesCommand(t *testing.T) {
	store := memory.NewStore()
	recorder := &countingRecorder{decisions: map[string]int{}}
	gate := NewGate(StaticPolicy(DecisionQueue), store, nil, recorder, zap.NewNop())
	ctx := common.WithUserID(context.Background(), "u-42")

	err := gate.Check(ctx, ActionTopicCreate, sampleCommand{Name: "Moon"})
	require.True(t, apperrors.IsModerationPending(err))
	id := apperrors.GetAppError(err).Code

	pa, err := gate.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Sample", pa.Command)
	assert.Equal(t, "u-42", pa.Actor)
	assert.Equal(t, entities.PendingStatusPending, pa.Status)

	var decoded sampleCommand
	require.NoError(t, json.Unmarshal(pa.Payload, &decoded))
	assert.Equal(t, "Moon", decoded.Name)
	assert.Equal(t, 1, recorder.decisions["topic_create/queue"])

	assert.NoError(t, gate.Check(WithApproval(ctx, id), ActionTopicCreate, sampleCommand{}), "approved replays pass")

	_, err = gate.List(ctx, "weird", 0)
	assert.True(t, apperrors.IsValidation(err))
}

func TestGate_Guard(t *testing.T) {
	ctx := context.Background()
	ran := 0
	op := func(context.Context) (interface{}, error) {
		ran++
		return "ok", nil
	}

	allow := NewGate(StaticPolicy(DecisionAllow), memory.NewStore(), nil, nil, zap.NewNop())
	outcome, err := allow.Guard(ctx, sampleCommand{}, op)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDone, outcome.Status)
	assert.Equal(t, "ok", outcome.Result)

	queue := NewGate(StaticPolicy(DecisionQueue), memory.NewStore(), nil, nil, zap.NewNop())
	outcome, err = queue.Guard(ctx, sampleCommand{}, op)
	require.NoError(t, err)
	assert.True(t, outcome.Pending())
	assert.NotEmpty(t, outcome.PendingID)

	reject := NewGate(StaticPolicy(DecisionReject), memory.NewStore(), nil, nil, zap.NewNop())
	_, err = reject.Guard(ctx, sampleCommand{}, op)
	assert.True(t, apperrors.IsModerationRejected(err))

	assert.Equal(t, 1, ran, "only the allowed call runs the operation")

	_, err = queue.Approve(ctx, outcome.PendingID, "mod")
	assert.Error(t, err, "approve needs a replayer")
}

func TestGate_NoticeNeverFails(t *testing.T) {
	publisher := new(mockPublisher)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.DomainEvent) bool {
		return e.GetEventType() == "moderation.topic_merged" && e.GetAggregateID() == "тема:A"
	})).Return(errors.New("bus down")).Once()

	gate := NewGate(StaticPolicy(DecisionAllow), memory.NewStore(), publisher, nil, zap.NewNop())
	gate.Notice(context.Background(), NoticeTopicMerged, "тема:A", map[string]string{"into": "тема:B"})

	publisher.AssertExpectations(t)
}

func TestApprovalContext(t *testing.T) {
	_, ok := ApprovedBy(context.Background())
	assert.False(t, ok)

	id, ok := ApprovedBy(WithApproval(context.Background(), "p-1"))
	assert.True(t, ok)
	assert.Equal(t, "p-1", id)
}
