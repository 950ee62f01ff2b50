package moderation

import (
	"context"
)

type approvalKey struct{}

// WithApproval marks ctx as the replay of an approved pending action.
// Every check made under it passes.
func WithApproval(ctx context.Context, pendingID string) context.Context {
	return context.WithValue(ctx, approvalKey{}, pendingID)
}

// ApprovedBy returns the pending action id being replayed, if any
func ApprovedBy(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(approvalKey{}).(string)
	return id, ok && id != ""
}
