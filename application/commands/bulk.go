package commands

import (
	"context"

	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// BulkLinkResourcesCommand links many resources to one topic
type BulkLinkResourcesCommand struct {
	TopicName    string   `json:"topic_name"`
	ResourceURIs []string `json:"resource_uris"`
}

// Validate accepts anything so callers always learn the operation is missing
func (c BulkLinkResourcesCommand) Validate() error     { return nil }
func (c BulkLinkResourcesCommand) CommandName() string { return "BulkLinkResources" }

// BulkLinkResources is reserved and not built yet
func (h *Handlers) BulkLinkResources(ctx context.Context, cmd BulkLinkResourcesCommand) (interface{}, error) {
	return nil, apperrors.NewUnimplementedError("bulk link")
}

// BulkUnlinkResourcesCommand unlinks many resources from one topic
type BulkUnlinkResourcesCommand struct {
	TopicName    string   `json:"topic_name"`
	ResourceURIs []string `json:"resource_uris"`
}

func (c BulkUnlinkResourcesCommand) Validate() error     { return nil }
func (c BulkUnlinkResourcesCommand) CommandName() string { return "BulkUnlinkResources" }

// BulkUnlinkResources is reserved and not built yet
func (h *Handlers) BulkUnlinkResources(ctx context.Context, cmd BulkUnlinkResourcesCommand) (interface{}, error) {
	return nil, apperrors.NewUnimplementedError("bulk unlink")
}
