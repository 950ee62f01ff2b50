// Package redis fans topic index reloads out to every running instance.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/application/ports"
)

// Broadcaster implements ports.ReloadBroadcaster over Redis pub/sub.
// Each message carries the sender id so an instance skips its own reloads.
type Broadcaster struct {
	rdb        *goredis.Client
	channel    string
	instanceID string
	logger     *zap.Logger
}

var _ ports.ReloadBroadcaster = (*Broadcaster)(nil)

// NewBroadcaster connects to Redis at url (redis://host:port/db)
func NewBroadcaster(url, channel string, logger *zap.Logger) (*Broadcaster, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if channel == "" {
		channel = "topics:reload"
	}
	return &Broadcaster{
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.New().String(),
		logger:     logger,
	}, nil
}

// Broadcast announces a reload to the other instances
func (b *Broadcaster) Broadcast(ctx context.Context) error {
	if err := b.rdb.Publish(ctx, b.channel, b.instanceID).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe calls fn for reloads from other instances until ctx is done
func (b *Broadcaster) Subscribe(ctx context.Context, fn func()) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			if !b.fromOther(m.Payload) {
				continue
			}
			b.logger.Debug("Reload received", zap.String("from", m.Payload))
			fn()
		}
	}
}

// Ping checks the Redis connection
func (b *Broadcaster) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close closes the Redis client
func (b *Broadcaster) Close() error {
	return b.rdb.Close()
}

func (b *Broadcaster) fromOther(sender string) bool {
	return sender != "" && sender != b.instanceID
}
