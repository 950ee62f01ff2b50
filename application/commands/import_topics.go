package commands

import (
	"context"
	"strings"

	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/pkg/utils"
	"go.uber.org/zap"
)

// ImportTopicsCommand creates topics in bulk from newline separated names
type ImportTopicsCommand struct {
	Names []string `json:"names" validate:"required,min=1"`
}

// NewImportTopicsCommand splits a raw import body into names
func NewImportTopicsCommand(body string) ImportTopicsCommand {
	return ImportTopicsCommand{Names: utils.UniqueNonEmpty(strings.Split(body, "\n"))}
}

func (c ImportTopicsCommand) Validate() error          { return utils.ValidateStruct(c) }
func (c ImportTopicsCommand) CommandName() string      { return "ImportTopics" }
func (c ImportTopicsCommand) Action() moderation.Action { return moderation.ActionTopicCreate }

// ImportResult reports how many topics an import touched
type ImportResult struct {
	Imported int `json:"imported"`
}

// ImportTopics find-or-creates every name and reloads the topic index
func (h *Handlers) ImportTopics(ctx context.Context, cmd ImportTopicsCommand) (*moderation.Outcome, error) {
	return h.gate.Guard(ctx, cmd, func(ctx context.Context) (interface{}, error) {
		names := utils.UniqueNonEmpty(cmd.Names)
		for _, name := range names {
			if _, err := h.topics.FindOrCreate(ctx, name); err != nil {
				return nil, err
			}
		}
		if err := h.topics.Reload(ctx); err != nil {
			return nil, err
		}
		h.logger.Info("Topics imported", zap.Int("count", len(names)))
		return &ImportResult{Imported: len(names)}, nil
	})
}
