package commands

import (
	"context"
	"fmt"

	"github.com/VadimShubkin/ii/application/commands/bus"
	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/application/services"
	"go.uber.org/zap"
)

// Handlers executes the topic graph commands. Each gated command runs
// through the moderation gate and returns a *moderation.Outcome.
type Handlers struct {
	topics *services.TopicService
	store  ports.EntityStore
	gate   *moderation.Gate
	logger *zap.Logger
}

// NewHandlers creates the command handlers
func NewHandlers(topics *services.TopicService, store ports.EntityStore, gate *moderation.Gate, logger *zap.Logger) *Handlers {
	return &Handlers{
		topics: topics,
		store:  store,
		gate:   gate,
		logger: logger,
	}
}

// Register binds every command to its handler on b
func (h *Handlers) Register(b *bus.CommandBus) error {
	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandlerFunc
	}{
		{ImportTopicsCommand{}, adapt(h.ImportTopics)},
		{LinkResourceCommand{}, adapt(h.LinkResource)},
		{LinkItemsRangeCommand{}, adapt(h.LinkItemsRange)},
		{UpdateRateCommand{}, adapt(h.UpdateRate)},
		{UpdateCommentCommand{}, adapt(h.UpdateComment)},
		{UnlinkResourceCommand{}, adapt(h.UnlinkResource)},
		{AddChildCommand{}, adapt(h.AddChild)},
		{UnlinkTopicCommand{}, adapt(h.UnlinkTopic)},
		{MergeTopicsCommand{}, adapt(h.MergeTopics)},
		{AddRelatedCommand{}, adapt(h.AddRelated)},
		{BulkLinkResourcesCommand{}, adapt(h.BulkLinkResources)},
		{BulkUnlinkResourcesCommand{}, adapt(h.BulkUnlinkResources)},
	}
	for _, r := range registrations {
		if err := b.Register(r.cmd, r.handler); err != nil {
			return err
		}
	}
	return nil
}

// adapt turns a typed handler method into a bus handler
func adapt[C bus.Command, R any](fn func(context.Context, C) (R, error)) bus.CommandHandlerFunc {
	return func(ctx context.Context, cmd bus.Command) (interface{}, error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, fmt.Errorf("unexpected command type %T", cmd)
		}
		return fn(ctx, typed)
	}
}
