package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/application/ports"
)

// errLockHeld reports contention on a lock another owner holds
var errLockHeld = errors.New("lock already held")

// DistributedLock provides distributed locking using DynamoDB conditional writes.
// Locks expire after their duration so a crashed owner cannot block forever.
type DistributedLock struct {
	client       Client
	tableName    string
	owner        string
	lockDuration time.Duration
	logger       *zap.Logger
}

var _ ports.Locker = (*DistributedLock)(nil)

// NewDistributedLock creates a lock manager owned by this process
func NewDistributedLock(client Client, tableName string, lockDuration time.Duration, logger *zap.Logger) *DistributedLock {
	host, _ := os.Hostname()
	if lockDuration <= 0 {
		lockDuration = 10 * time.Second
	}
	return &DistributedLock{
		client:       client,
		tableName:    tableName,
		owner:        host + "/" + uuid.New().String(),
		lockDuration: lockDuration,
		logger:       logger,
	}
}

// Lock retries until the key is acquired or ctx is done
func (dl *DistributedLock) Lock(ctx context.Context, key string) (func(), error) {
	retryInterval := 25 * time.Millisecond

	for {
		lockID, err := dl.acquire(ctx, key)
		if err == nil {
			return func() {
				// The caller's context may already be cancelled
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := dl.release(releaseCtx, key, lockID); err != nil {
					dl.logger.Warn("Failed to release lock", zap.String("resource", key), zap.Error(err))
				}
			}, nil
		}
		if !errors.Is(err, errLockHeld) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
			// Back off up to half a second
			if retryInterval < 500*time.Millisecond {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

func (dl *DistributedLock) acquire(ctx context.Context, resource string) (string, error) {
	lockID := dl.owner + "_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	now := time.Now().UTC()
	expiresAt := now.Add(dl.lockDuration)

	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: "LOCK#" + resource},
		"SK":         &types.AttributeValueMemberS{Value: "LOCK"},
		"LockID":     &types.AttributeValueMemberS{Value: lockID},
		"Owner":      &types.AttributeValueMemberS{Value: dl.owner},
		"AcquiredAt": &types.AttributeValueMemberS{Value: now.Format(sortableTime)},
		"ExpiresAt":  &types.AttributeValueMemberS{Value: expiresAt.Format(sortableTime)},
		"TTL":        &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
	}

	_, err := dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dl.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(sortableTime)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return "", errLockHeld
		}
		return "", fmt.Errorf("failed to acquire lock: %w", mapError("acquire lock", err))
	}

	dl.logger.Debug("Lock acquired",
		zap.String("resource", resource),
		zap.String("lockID", lockID),
		zap.Duration("duration", dl.lockDuration),
	)
	return lockID, nil
}

func (dl *DistributedLock) release(ctx context.Context, resource, lockID string) error {
	_, err := dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "LOCK#" + resource},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
		ConditionExpression: aws.String("LockID = :lockId AND #owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "Owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
			":owner":  &types.AttributeValueMemberS{Value: dl.owner},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			// Expired and taken over; nothing left to release
			dl.logger.Warn("Lock already released or owned by someone else",
				zap.String("resource", resource),
				zap.String("lockID", lockID),
			)
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}

	dl.logger.Debug("Lock released", zap.String("resource", resource), zap.String("lockID", lockID))
	return nil
}
