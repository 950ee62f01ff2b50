package commands

import (
	"context"

	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/VadimShubkin/ii/pkg/utils"
)

// LinkResourceCommand annotates an existing entity with a topic
type LinkResourceCommand struct {
	URI       string   `json:"uri" validate:"required"`
	TopicName string   `json:"topic_name" validate:"required"`
	Quote     *string  `json:"quote,omitempty"`
	Comment   *string  `json:"comment,omitempty"`
	Rate      *float64 `json:"rate,omitempty"`
}

func (c LinkResourceCommand) Validate() error          { return utils.ValidateStruct(c) }
func (c LinkResourceCommand) CommandName() string      { return "LinkResource" }
func (c LinkResourceCommand) Action() moderation.Action { return moderation.ActionTopicLinkResource }

// LinkResource find-or-creates the topic and links it to the entity at URI
func (h *Handlers) LinkResource(ctx context.Context, cmd LinkResourceCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		kind, ok := entities.KindOfURI(cmd.URI)
		if !ok {
			return nil, apperrors.NewValidationError("unknown uri namespace: " + cmd.URI)
		}
		target, err := h.store.Get(ctx, kind, cmd.URI)
		if err != nil {
			return nil, err
		}

		topic, err := h.topics.FindOrCreate(ctx, cmd.TopicName)
		if err != nil {
			return nil, err
		}
		if _, err := topic.LinkResource(ctx, target, entities.LinkOptions{
			Comment: cmd.Comment,
			Quote:   cmd.Quote,
			Rate:    cmd.Rate,
		}); err != nil {
			return nil, err
		}
		return topic.Topic().Snapshot(), nil
	})
}
