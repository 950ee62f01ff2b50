package commands

import (
	"context"

	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/VadimShubkin/ii/pkg/utils"
	"go.uber.org/zap"
)

// LinkItemsRangeCommand creates or updates an items range and links a topic to it
type LinkItemsRangeCommand struct {
	From      string   `json:"from" validate:"required"`
	To        string   `json:"to" validate:"required"`
	TopicName string   `json:"topic_name" validate:"required"`
	RangeName string   `json:"range_name,omitempty"`
	Quote     *string  `json:"quote,omitempty"`
	Comment   *string  `json:"comment,omitempty"`
	Rate      *float64 `json:"rate,omitempty"`
}

func (c LinkItemsRangeCommand) Validate() error          { return utils.ValidateStruct(c) }
func (c LinkItemsRangeCommand) CommandName() string      { return "LinkItemsRange" }
func (c LinkItemsRangeCommand) Action() moderation.Action { return moderation.ActionTopicLinkRange }

// LinkItemsRange stores the range, gated separately for create and update,
// then links the topic to it
func (h *Handlers) LinkItemsRange(ctx context.Context, cmd LinkItemsRangeCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		rng, err := h.upsertRange(ctx, cmd)
		if err != nil {
			return nil, err
		}

		topic, err := h.topics.FindOrCreate(ctx, cmd.TopicName)
		if err != nil {
			return nil, err
		}
		link, err := topic.LinkResource(ctx, rng, entities.LinkOptions{
			Comment: cmd.Comment,
			Quote:   cmd.Quote,
			Rate:    cmd.Rate,
		})
		if err != nil {
			return nil, err
		}
		return link.Record(), nil
	})
}

func (h *Handlers) upsertRange(ctx context.Context, cmd LinkItemsRangeCommand) (*entities.ItemsRange, error) {
	fresh, err := entities.NewItemsRange(cmd.From, cmd.To, cmd.RangeName)
	if err != nil {
		return nil, err
	}

	existing, err := h.store.Get(ctx, entities.KindItemsRange, fresh.URI())
	switch {
	case apperrors.IsNotFound(err):
		if err := h.gate.Check(ctx, moderation.ActionItemsRangeCreate, cmd); err != nil {
			return nil, err
		}
		if err := h.store.Save(ctx, fresh); err != nil {
			return nil, err
		}
		h.logger.Info("Items range created", zap.String("uri", fresh.URI()))
		return fresh, nil
	case err != nil:
		return nil, err
	}

	rng, ok := existing.(*entities.ItemsRange)
	if !ok {
		return nil, apperrors.NewInternalError("entity " + fresh.URI() + " is not an items range")
	}
	if cmd.RangeName == "" || rng.Description() == cmd.RangeName {
		return rng, nil
	}
	if err := h.gate.Check(ctx, moderation.ActionItemsRangeUpdate, cmd); err != nil {
		return nil, err
	}
	rng.SetDescription(cmd.RangeName)
	if err := h.store.Save(ctx, rng); err != nil {
		return nil, err
	}
	return rng, nil
}
