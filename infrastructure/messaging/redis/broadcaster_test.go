package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroadcaster_SkipsOwnMessages(t *testing.T) {
	b := &Broadcaster{instanceID: "self", logger: zap.NewNop()}

	assert.False(t, b.fromOther("self"))
	assert.False(t, b.fromOther(""))
	assert.True(t, b.fromOther("peer"))
}

func TestNewBroadcaster_RejectsBadURL(t *testing.T) {
	_, err := NewBroadcaster("not a url", "", zap.NewNop())
	require.Error(t, err)
}
