// Package moderation decides whether a write may run now, must wait for a
// moderator, or is refused, and replays approved writes.
package moderation

import (
	"github.com/VadimShubkin/ii/application/commands/bus"
)

// Action tags a gated write
type Action string

const (
	ActionTopicCreate                    Action = "topic_create"
	ActionTopicLinkResource              Action = "topic_link_resource"
	ActionTopicLinkRange                 Action = "topic_link_range"
	ActionItemsRangeCreate               Action = "items_range_create"
	ActionItemsRangeUpdate               Action = "items_range_update"
	ActionTopicResourceLinkRateUpdate    Action = "topic_resource_link_rate_update"
	ActionTopicResourceLinkCommentUpdate Action = "topic_resource_link_comment_update"
	ActionTopicUnlinkResource            Action = "topic_unlink_resource"
	ActionTopicAddChild                  Action = "topic_add_child"
	ActionTopicAddRelated                Action = "topic_add_related"
	ActionTopicMerge                     Action = "topic_merge"
	ActionTopicUnlink                    Action = "topic_unlink"
)

// Notice tags an applied write reported for audit only
type Notice string

const (
	NoticeTopicChildAdded       Notice = "topic_child_added"
	NoticeTopicResourceUnlinked Notice = "topic_resource_unlinked"
	NoticeTopicTopicUnlinked    Notice = "topic_topic_unlinked"
	NoticeTopicRelatedAdded     Notice = "topic_related_added"
	NoticeTopicMerged           Notice = "topic_merged"
)

// Gated is a command that passes through the gate. The command itself is
// the replayable record of its arguments.
type Gated interface {
	bus.Command
	Action() Action
}
