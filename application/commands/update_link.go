package commands

import (
	"context"

	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/pkg/utils"
)

// UpdateRateCommand changes the rate of the link between a topic and a URI
type UpdateRateCommand struct {
	ForURI    string   `json:"for_uri" validate:"required"`
	TopicName string   `json:"topic_name" validate:"required"`
	Rate      *float64 `json:"rate" validate:"required"`
}

func (c UpdateRateCommand) Validate() error     { return utils.ValidateStruct(c) }
func (c UpdateRateCommand) CommandName() string { return "UpdateRate" }
func (c UpdateRateCommand) Action() moderation.Action {
	return moderation.ActionTopicResourceLinkRateUpdate
}

// UpdateRate rewrites the rate and keeps the comment
func (h *Handlers) UpdateRate(ctx context.Context, cmd UpdateRateCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		links := h.topics.Links()
		link, err := links.GetByEndpoints(ctx, cmd.ForURI, entities.TopicURI(cmd.TopicName))
		if err != nil {
			return nil, err
		}
		updated, err := links.Updater(link).Rate(cmd.Rate).Commit(ctx)
		if err != nil {
			return nil, err
		}
		return updated.Record(), nil
	})
}

// UpdateCommentCommand changes the comment of the link between a topic and a URI
type UpdateCommentCommand struct {
	ForURI    string `json:"for_uri" validate:"required"`
	TopicName string `json:"topic_name" validate:"required"`
	Comment   string `json:"comment"`
}

func (c UpdateCommentCommand) Validate() error     { return utils.ValidateStruct(c) }
func (c UpdateCommentCommand) CommandName() string { return "UpdateComment" }
func (c UpdateCommentCommand) Action() moderation.Action {
	return moderation.ActionTopicResourceLinkCommentUpdate
}

// UpdateComment rewrites the comment and keeps the rate
func (h *Handlers) UpdateComment(ctx context.Context, cmd UpdateCommentCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		links := h.topics.Links()
		link, err := links.GetByEndpoints(ctx, cmd.ForURI, entities.TopicURI(cmd.TopicName))
		if err != nil {
			return nil, err
		}
		comment := cmd.Comment
		updated, err := links.Updater(link).Comment(&comment).Commit(ctx)
		if err != nil {
			return nil, err
		}
		return updated.Record(), nil
	})
}
