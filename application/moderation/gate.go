package moderation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/VadimShubkin/ii/application/commands/bus"
	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/domain/events"
	"github.com/VadimShubkin/ii/pkg/common"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"go.uber.org/zap"
)

// Replayer decodes a stored command and runs it again
type Replayer interface {
	Decode(name string, payload []byte) (bus.Command, error)
	Send(ctx context.Context, cmd bus.Command) (interface{}, error)
}

// DecisionRecorder counts policy decisions
type DecisionRecorder interface {
	RecordModeration(action, decision string)
}

// OutcomeStatus tells a caller whether its write ran
type OutcomeStatus string

const (
	OutcomeDone    OutcomeStatus = "done"
	OutcomePending OutcomeStatus = "pending"
)

// Outcome is the result of a guarded write
type Outcome struct {
	Status    OutcomeStatus
	Action    Action
	PendingID string
	Result    interface{}
}

// Pending reports whether the write was queued
func (o *Outcome) Pending() bool {
	return o != nil && o.Status == OutcomePending
}

// Gate applies the moderation policy to writes, queues the ones that need
// a moderator and replays them on approval.
type Gate struct {
	policy    Policy
	store     ports.PendingActionStore
	publisher ports.EventPublisher
	recorder  DecisionRecorder
	replayer  Replayer
	logger    *zap.Logger
}

// NewGate creates a gate. The replayer is attached later with SetReplayer
// because it usually dispatches to handlers that hold the gate.
func NewGate(policy Policy, store ports.PendingActionStore, publisher ports.EventPublisher, recorder DecisionRecorder, logger *zap.Logger) *Gate {
	return &Gate{
		policy:    policy,
		store:     store,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
	}
}

// SetReplayer attaches the command dispatcher used by Approve
func (g *Gate) SetReplayer(r Replayer) {
	g.replayer = r
}

// Check evaluates the policy for action. It returns nil when the write may
// run now, a ModerationPending error carrying the pending id once cmd has
// been queued, or a ModerationRejected error.
func (g *Gate) Check(ctx context.Context, action Action, cmd bus.Command) error {
	if id, ok := ApprovedBy(ctx); ok {
		g.logger.Debug("Replaying approved action", zap.String("action", string(action)), zap.String("pendingID", id))
		return nil
	}

	decision := g.policy.Decide(ctx, action)
	if g.recorder != nil {
		g.recorder.RecordModeration(string(action), string(decision))
	}

	switch decision {
	case DecisionAllow:
		return nil
	case DecisionReject:
		g.logger.Info("Action rejected by moderation",
			zap.String("action", string(action)),
			zap.String("actor", common.Actor(ctx)),
		)
		return apperrors.NewModerationRejectedError(string(action))
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode %s for moderation: %w", cmd.CommandName(), err)
	}
	pa := entities.NewPendingAction(string(action), cmd.CommandName(), payload, common.Actor(ctx))
	if err := g.store.CreatePending(ctx, pa); err != nil {
		return fmt.Errorf("failed to queue %s: %w", action, err)
	}

	g.logger.Info("Action queued for moderation",
		zap.String("action", string(action)),
		zap.String("pendingID", pa.ID),
		zap.String("actor", pa.Actor),
	)
	return apperrors.NewModerationPendingError(string(action), pa.ID)
}

// Notice records an applied write for audit. It never fails the caller.
func (g *Gate) Notice(ctx context.Context, notice Notice, subject string, args map[string]string) {
	actor := common.Actor(ctx)
	fields := []zap.Field{
		zap.String("notice", string(notice)),
		zap.String("subject", subject),
		zap.String("actor", actor),
	}
	for k, v := range args {
		fields = append(fields, zap.String(k, v))
	}
	g.logger.Info("Moderation notice", fields...)

	if g.publisher == nil {
		return
	}
	if err := g.publisher.Publish(ctx, events.NewModerationNotice(string(notice), subject, actor, args)); err != nil {
		g.logger.Warn("Failed to publish moderation notice", zap.String("notice", string(notice)), zap.Error(err))
	}
}

// Guard checks cmd's action and runs op when it is allowed.
// A queued write is reported as an OutcomePending outcome, not as an error.
func (g *Gate) Guard(ctx context.Context, cmd Gated, op func(ctx context.Context) (interface{}, error)) (*Outcome, error) {
	action := cmd.Action()
	if err := g.Check(ctx, action, cmd); err != nil {
		return pendingOutcome(action, err)
	}

	result, err := op(ctx)
	if err != nil {
		// op may run nested checks of its own
		return pendingOutcome(action, err)
	}
	return &Outcome{Status: OutcomeDone, Action: action, Result: result}, nil
}

func pendingOutcome(action Action, err error) (*Outcome, error) {
	if !apperrors.IsModerationPending(err) {
		return nil, err
	}
	return &Outcome{
		Status:    OutcomePending,
		Action:    action,
		PendingID: apperrors.GetAppError(err).Code,
	}, nil
}

// Approve moves a pending action to approved and replays it exactly once.
// A replay that finds its relation already in place counts as applied.
func (g *Gate) Approve(ctx context.Context, id, moderator string) (*entities.PendingAction, error) {
	if g.replayer == nil {
		return nil, apperrors.NewInternalError("moderation replayer is not configured")
	}

	pa, err := g.store.TransitionPending(ctx, id, entities.PendingStatusPending, entities.PendingStatusApproved, moderator, "")
	if err != nil {
		return nil, err
	}

	final, note := entities.PendingStatusApplied, ""
	replayErr := g.replay(ctx, pa)
	switch {
	case replayErr == nil:
	case apperrors.IsDuplicateRelation(replayErr):
		note = replayErr.Error()
	default:
		final, note = entities.PendingStatusFailed, replayErr.Error()
	}

	done, err := g.store.TransitionPending(ctx, id, entities.PendingStatusApproved, final, moderator, note)
	if err != nil {
		return nil, err
	}

	g.logger.Info("Pending action approved",
		zap.String("pendingID", id),
		zap.String("action", pa.Action),
		zap.String("moderator", moderator),
		zap.String("status", string(final)),
	)
	g.publishDecision(ctx, done)
	return done, nil
}

func (g *Gate) replay(ctx context.Context, pa *entities.PendingAction) error {
	cmd, err := g.replayer.Decode(pa.Command, pa.Payload)
	if err != nil {
		return err
	}
	_, err = g.replayer.Send(WithApproval(ctx, pa.ID), cmd)
	return err
}

// Reject refuses a pending action; it is never replayed
func (g *Gate) Reject(ctx context.Context, id, moderator string) (*entities.PendingAction, error) {
	pa, err := g.store.TransitionPending(ctx, id, entities.PendingStatusPending, entities.PendingStatusRejected, moderator, "")
	if err != nil {
		return nil, err
	}
	g.logger.Info("Pending action rejected",
		zap.String("pendingID", id),
		zap.String("action", pa.Action),
		zap.String("moderator", moderator),
	)
	g.publishDecision(ctx, pa)
	return pa, nil
}

// List returns queued actions in a status
func (g *Gate) List(ctx context.Context, status entities.PendingStatus, limit int) ([]*entities.PendingAction, error) {
	if status != "" && !status.IsValid() {
		return nil, apperrors.NewValidationError("unknown pending status: " + string(status))
	}
	return g.store.ListPending(ctx, status, limit)
}

// Get returns one queued action
func (g *Gate) Get(ctx context.Context, id string) (*entities.PendingAction, error) {
	return g.store.GetPending(ctx, id)
}

func (g *Gate) publishDecision(ctx context.Context, pa *entities.PendingAction) {
	if g.publisher == nil {
		return
	}
	event := events.NewPendingActionDecided(pa.ID, pa.Action, string(pa.Status), pa.Moderator)
	if err := g.publisher.Publish(ctx, event); err != nil {
		g.logger.Warn("Failed to publish moderation decision", zap.String("pendingID", pa.ID), zap.Error(err))
	}
}
