package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// pendingItem represents a moderation queue entry
type pendingItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	EntityType string `dynamodbav:"EntityType"`
	PendingID  string `dynamodbav:"PendingID"`
	Action     string `dynamodbav:"Action"`
	Command    string `dynamodbav:"Command"`
	Payload    string `dynamodbav:"Payload"`
	Actor      string `dynamodbav:"Actor"`
	Status     string `dynamodbav:"Status"`
	Moderator  string `dynamodbav:"Moderator"`
	Error      string `dynamodbav:"Error"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

func newPendingItem(pa *entities.PendingAction) pendingItem {
	return pendingItem{
		PK:         pendingPK(pa.ID),
		SK:         metadataSK,
		GSI1PK:     statusGSI(string(pa.Status)),
		GSI1SK:     pa.CreatedAt.UTC().Format(sortableTime) + "#" + pa.ID,
		EntityType: entityTypePending,
		PendingID:  pa.ID,
		Action:     pa.Action,
		Command:    pa.Command,
		Payload:    string(pa.Payload),
		Actor:      pa.Actor,
		Status:     string(pa.Status),
		Moderator:  pa.Moderator,
		Error:      pa.Error,
		CreatedAt:  formatTime(pa.CreatedAt),
		UpdatedAt:  formatTime(pa.UpdatedAt),
	}
}

func (i pendingItem) action() *entities.PendingAction {
	return &entities.PendingAction{
		ID:        i.PendingID,
		Action:    i.Action,
		Command:   i.Command,
		Payload:   json.RawMessage(i.Payload),
		Actor:     i.Actor,
		Status:    entities.PendingStatus(i.Status),
		Moderator: i.Moderator,
		Error:     i.Error,
		CreatedAt: parseTime(i.CreatedAt),
		UpdatedAt: parseTime(i.UpdatedAt),
	}
}

// CreatePending persists a new pending action; an existing id is a conflict
func (s *Store) CreatePending(ctx context.Context, action *entities.PendingAction) error {
	if action == nil || action.ID == "" {
		return apperrors.NewValidationError("pending action id is required")
	}

	av, err := attributevalue.MarshalMap(newPendingItem(action))
	if err != nil {
		return fmt.Errorf("failed to marshal pending action: %w", err)
	}

	cond := expression.Name("PK").AttributeNotExists()
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if isConditionFailed(err) {
		return apperrors.NewConflictError("pending action " + action.ID + " already exists")
	}
	if err != nil {
		return mapError("create pending action", err)
	}

	s.logger.Info("Pending action queued",
		zap.String("pendingID", action.ID),
		zap.String("action", action.Action),
		zap.String("actor", action.Actor),
	)
	return nil
}

// GetPending retrieves a pending action by id
func (s *Store) GetPending(ctx context.Context, id string) (*entities.PendingAction, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            rowKey(pendingPK(id), metadataSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, mapError("get pending action", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError("pending action " + id)
	}

	var item pendingItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending action: %w", err)
	}
	return item.action(), nil
}

// ListPending queries the status index, or scans every action when status is empty
func (s *Store) ListPending(ctx context.Context, status entities.PendingStatus, limit int) ([]*entities.PendingAction, error) {
	var (
		raws []map[string]types.AttributeValue
		err  error
	)
	if status != "" {
		raws, err = s.queryByStatus(ctx, status, limit)
	} else {
		raws, err = s.scanPending(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*entities.PendingAction, 0, len(raws))
	for _, raw := range raws {
		var item pendingItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			s.logger.Warn("Failed to parse pending item", zap.Error(err))
			continue
		}
		out = append(out, item.action())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) queryByStatus(ctx context.Context, status entities.PendingStatus, limit int) ([]map[string]types.AttributeValue, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(statusGSI(string(status))))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(s.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError("query pending actions", err)
		}
		items = append(items, page.Items...)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (s *Store) scanPending(ctx context.Context) ([]map[string]types.AttributeValue, error) {
	filter := expression.Name("EntityType").Equal(expression.Value(entityTypePending))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError("scan pending actions", err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// TransitionPending moves an action between statuses with a conditional update
func (s *Store) TransitionPending(ctx context.Context, id string, from, to entities.PendingStatus, moderator, note string) (*entities.PendingAction, error) {
	update := expression.
		Set(expression.Name("Status"), expression.Value(string(to))).
		Set(expression.Name("GSI1PK"), expression.Value(statusGSI(string(to)))).
		Set(expression.Name("Error"), expression.Value(note)).
		Set(expression.Name("UpdatedAt"), expression.Value(formatTime(time.Now().UTC())))
	if moderator != "" {
		update = update.Set(expression.Name("Moderator"), expression.Value(moderator))
	}
	cond := expression.Name("PK").AttributeExists().
		And(expression.Name("Status").Equal(expression.Value(string(from))))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       rowKey(pendingPK(id), metadataSK),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		current, getErr := s.GetPending(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.NewConflictError("pending action " + id + " is " + string(current.Status) + ", not " + string(from))
	}
	if err != nil {
		return nil, mapError("transition pending action", err)
	}

	var item pendingItem
	if err := attributevalue.UnmarshalMap(result.Attributes, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending action: %w", err)
	}

	s.logger.Info("Pending action transitioned",
		zap.String("pendingID", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("moderator", moderator),
	)
	return item.action(), nil
}
