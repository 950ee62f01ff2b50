package commands

import (
	"context"

	"github.com/VadimShubkin/ii/application/moderation"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/VadimShubkin/ii/pkg/utils"
)

// UnlinkResult reports whether an unlink removed anything
type UnlinkResult struct {
	Removed bool   `json:"removed"`
	Linked  string `json:"linked,omitempty"`
}

// UnlinkResourceCommand removes the link between a topic and a resource
type UnlinkResourceCommand struct {
	URI      string `json:"uri" validate:"required"`
	TopicURI string `json:"topic_uri" validate:"required"`
}

func (c UnlinkResourceCommand) Validate() error          { return utils.ValidateStruct(c) }
func (c UnlinkResourceCommand) CommandName() string      { return "UnlinkResource" }
func (c UnlinkResourceCommand) Action() moderation.Action { return moderation.ActionTopicUnlinkResource }

// UnlinkResource removes the first link joining the topic and the URI
func (h *Handlers) UnlinkResource(ctx context.Context, cmd UnlinkResourceCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		links := h.topics.Links()
		link, err := links.GetByEndpoints(ctx, cmd.URI, cmd.TopicURI)
		if apperrors.IsNotFound(err) {
			return &UnlinkResult{}, nil
		}
		if err != nil {
			return nil, err
		}
		if err := links.Remove(ctx, link); err != nil {
			return nil, err
		}
		h.gate.Notice(ctx, moderation.NoticeTopicResourceUnlinked, cmd.TopicURI, map[string]string{"uri": cmd.URI})
		return &UnlinkResult{Removed: true, Linked: cmd.URI}, nil
	})
}

// UnlinkTopicCommand removes the link between two topics
type UnlinkTopicCommand struct {
	Name   string `json:"name" validate:"required"`
	Linked string `json:"linked" validate:"required"`
}

func (c UnlinkTopicCommand) Validate() error          { return utils.ValidateStruct(c) }
func (c UnlinkTopicCommand) CommandName() string      { return "UnlinkTopic" }
func (c UnlinkTopicCommand) Action() moderation.Action { return moderation.ActionTopicUnlink }

// UnlinkTopic removes whatever link joins the two topics
func (h *Handlers) UnlinkTopic(ctx context.Context, cmd UnlinkTopicCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		topic, err := h.topics.GetByName(ctx, cmd.Name, false)
		if err != nil {
			return nil, err
		}
		removed, err := topic.Unlink(ctx, cmd.Linked)
		if err != nil {
			return nil, err
		}
		if removed == nil {
			return &UnlinkResult{}, nil
		}
		h.gate.Notice(ctx, moderation.NoticeTopicTopicUnlinked, topic.URI(), map[string]string{"linked": removed.URI()})
		return &UnlinkResult{Removed: true, Linked: removed.Name()}, nil
	})
}
