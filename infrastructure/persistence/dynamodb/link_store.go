package dynamodb

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// linkItem represents a link row; the same shape is stored under the link
// and under each endpoint
type linkItem struct {
	PK         string   `dynamodbav:"PK"`
	SK         string   `dynamodbav:"SK"`
	EntityType string   `dynamodbav:"EntityType"`
	LinkID     string   `dynamodbav:"LinkID"`
	Kind       string   `dynamodbav:"Kind"`
	EndpointA  string   `dynamodbav:"EndpointA"`
	EndpointB  string   `dynamodbav:"EndpointB"`
	Rate       *float64 `dynamodbav:"Rate,omitempty"`
	Comment    *string  `dynamodbav:"Comment,omitempty"`
	Quote      *string  `dynamodbav:"Quote,omitempty"`
	CreatedAt  string   `dynamodbav:"CreatedAt"`
	UpdatedAt  string   `dynamodbav:"UpdatedAt"`
}

func newLinkItem(rec entities.LinkRecord, pk, sk, entityType string) linkItem {
	return linkItem{
		PK:         pk,
		SK:         sk,
		EntityType: entityType,
		LinkID:     rec.ID,
		Kind:       string(rec.Kind),
		EndpointA:  rec.EndpointA,
		EndpointB:  rec.EndpointB,
		Rate:       rec.Rate,
		Comment:    rec.Comment,
		Quote:      rec.Quote,
		CreatedAt:  formatTime(rec.CreatedAt),
		UpdatedAt:  formatTime(rec.UpdatedAt),
	}
}

func (i linkItem) record() entities.LinkRecord {
	return entities.LinkRecord{
		ID:        i.LinkID,
		Kind:      entities.LinkKind(i.Kind),
		EndpointA: i.EndpointA,
		EndpointB: i.EndpointB,
		Rate:      i.Rate,
		Comment:   i.Comment,
		Quote:     i.Quote,
		CreatedAt: parseTime(i.CreatedAt),
		UpdatedAt: parseTime(i.UpdatedAt),
	}
}

func rowKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// SaveLink writes the link and its endpoint rows in one transaction.
// Rows under endpoints the link no longer touches are deleted.
func (s *Store) SaveLink(ctx context.Context, link *entities.Link) error {
	rec := link.Record()

	prev, err := s.getLinkRecord(ctx, rec.ID)
	if err != nil && !apperrors.IsNotFound(err) {
		return err
	}

	rows := []linkItem{
		newLinkItem(rec, linkPK(rec.ID), metadataSK, entityTypeLink),
		newLinkItem(rec, entityPK(rec.EndpointA), linkRefSK(rec.ID), entityTypeLinkRef),
		newLinkItem(rec, entityPK(rec.EndpointB), linkRefSK(rec.ID), entityTypeLinkRef),
	}

	items := make([]types.TransactWriteItem, 0, len(rows)+2)
	for _, row := range rows {
		av, err := attributevalue.MarshalMap(row)
		if err != nil {
			return fmt.Errorf("failed to marshal link: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.tableName), Item: av},
		})
	}
	if prev != nil {
		for _, old := range []string{prev.EndpointA, prev.EndpointB} {
			if old == rec.EndpointA || old == rec.EndpointB {
				continue
			}
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(s.tableName),
					Key:       rowKey(entityPK(old), linkRefSK(rec.ID)),
				},
			})
		}
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		s.logger.Error("Failed to save link", zap.String("linkID", rec.ID), zap.Error(err))
		return mapError("save link", err)
	}

	s.logger.Debug("Link saved",
		zap.String("linkID", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.String("endpointA", rec.EndpointA),
		zap.String("endpointB", rec.EndpointB),
	)
	return nil
}

// GetLink retrieves a link by id
func (s *Store) GetLink(ctx context.Context, id string) (*entities.Link, error) {
	rec, err := s.getLinkRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructLink(*rec), nil
}

func (s *Store) getLinkRecord(ctx context.Context, id string) (*entities.LinkRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            rowKey(linkPK(id), metadataSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, mapError("get link", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError("link " + id)
	}

	var item linkItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link: %w", err)
	}
	rec := item.record()
	return &rec, nil
}

// LinksOf reads the link rows stored under the entity, oldest first
func (s *Store) LinksOf(ctx context.Context, uri string) ([]*entities.Link, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(entityPK(uri))).
		And(expression.Key("SK").BeginsWith(linkRefSK("")))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	}

	recs := make([]entities.LinkRecord, 0)
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError("query links", err)
		}
		for _, raw := range page.Items {
			var item linkItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				s.logger.Warn("Failed to parse link item", zap.Error(err))
				continue
			}
			recs = append(recs, item.record())
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})

	out := make([]*entities.Link, len(recs))
	for i, rec := range recs {
		out[i] = entities.ReconstructLink(rec)
	}
	return out, nil
}

// RemoveLink deletes the link and its endpoint rows
func (s *Store) RemoveLink(ctx context.Context, id string) error {
	prev, err := s.getLinkRecord(ctx, id)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	keys := []map[string]types.AttributeValue{
		rowKey(linkPK(id), metadataSK),
		rowKey(entityPK(prev.EndpointA), linkRefSK(id)),
		rowKey(entityPK(prev.EndpointB), linkRefSK(id)),
	}
	items := make([]types.TransactWriteItem, len(keys))
	for i, key := range keys {
		items[i] = types.TransactWriteItem{
			Delete: &types.Delete{TableName: aws.String(s.tableName), Key: key},
		}
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return mapError("remove link", err)
	}
	s.logger.Debug("Link removed", zap.String("linkID", id))
	return nil
}
