package commands

import (
	"context"
	"strconv"

	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/pkg/utils"
)

// AddChildCommand makes Child a child topic of Name, creating both as needed
type AddChildCommand struct {
	Name  string `json:"name" validate:"required"`
	Child string `json:"child" validate:"required"`
}

func (c AddChildCommand) Validate() error          { return utils.ValidateStruct(c) }
func (c AddChildCommand) CommandName() string      { return "AddChild" }
func (c AddChildCommand) Action() moderation.Action { return moderation.ActionTopicAddChild }

// AddChild attaches the child and reports it
func (h *Handlers) AddChild(ctx context.Context, cmd AddChildCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		parent, err := h.topics.FindOrCreate(ctx, cmd.Name)
		if err != nil {
			return nil, err
		}
		child, err := parent.AddChild(ctx, cmd.Child)
		if err != nil {
			return nil, err
		}
		h.gate.Notice(ctx, moderation.NoticeTopicChildAdded, parent.URI(), map[string]string{"child": child.URI()})
		return child.Topic().Snapshot(), nil
	})
}

// AddRelatedCommand joins two topics with a related link
type AddRelatedCommand struct {
	Name    string `json:"name" validate:"required"`
	Related string `json:"related" validate:"required"`
}

func (c AddRelatedCommand) Validate() error          { return utils.ValidateStruct(c) }
func (c AddRelatedCommand) CommandName() string      { return "AddRelated" }
func (c AddRelatedCommand) Action() moderation.Action { return moderation.ActionTopicAddRelated }

// AddRelated find-or-creates both topics and links them
func (h *Handlers) AddRelated(ctx context.Context, cmd AddRelatedCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		topic, err := h.topics.FindOrCreate(ctx, cmd.Name)
		if err != nil {
			return nil, err
		}
		related, err := h.topics.FindOrCreate(ctx, cmd.Related)
		if err != nil {
			return nil, err
		}
		link, err := topic.Link(ctx, related)
		if err != nil {
			return nil, err
		}
		h.gate.Notice(ctx, moderation.NoticeTopicRelatedAdded, topic.URI(), map[string]string{"related": related.URI()})
		return link.Record(), nil
	})
}

// MergeTopicsCommand merges the Main branch into MergeInto
type MergeTopicsCommand struct {
	Main      string `json:"main" validate:"required"`
	MergeInto string `json:"merge_into" validate:"required"`
}

func (c MergeTopicsCommand) Validate() error          { return utils.ValidateStruct(c) }
func (c MergeTopicsCommand) CommandName() string      { return "MergeTopics" }
func (c MergeTopicsCommand) Action() moderation.Action { return moderation.ActionTopicMerge }

// MergeResult is the outcome of a merge as shown to callers
type MergeResult struct {
	Target  string `json:"target"`
	Moved   int    `json:"moved"`
	Dropped int    `json:"dropped"`
}

// MergeTopics moves every link of Main onto MergeInto and retires Main
func (h *Handlers) MergeTopics(ctx context.Context, cmd MergeTopicsCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		main, err := h.topics.GetByName(ctx, cmd.Main, true)
		if err != nil {
			return nil, err
		}
		result, err := main.Merge(ctx, cmd.MergeInto)
		if err != nil {
			return nil, err
		}
		h.gate.Notice(ctx, moderation.NoticeTopicMerged, main.URI(), map[string]string{
			"into":    result.Target.URI(),
			"moved":   strconv.Itoa(result.Moved),
			"dropped": strconv.Itoa(result.Dropped),
		})
		return &MergeResult{Target: result.Target.Name(), Moved: result.Moved, Dropped: result.Dropped}, nil
	})
}
