package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// entityItem represents the DynamoDB item structure for an entity
type entityItem struct {
	PK         string            `dynamodbav:"PK"`
	SK         string            `dynamodbav:"SK"`
	GSI1PK     string            `dynamodbav:"GSI1PK"`
	GSI1SK     string            `dynamodbav:"GSI1SK"`
	EntityType string            `dynamodbav:"EntityType"`
	URI        string            `dynamodbav:"URI"`
	Kind       string            `dynamodbav:"Kind"`
	Name       string            `dynamodbav:"Name"`
	Fields     map[string]string `dynamodbav:"Fields"`
	CreatedAt  string            `dynamodbav:"CreatedAt"`
	UpdatedAt  string            `dynamodbav:"UpdatedAt"`
}

func (i entityItem) snapshot() entities.Snapshot {
	return entities.Snapshot{
		URI:       i.URI,
		Kind:      entities.Kind(i.Kind),
		Name:      i.Name,
		Fields:    i.Fields,
		CreatedAt: parseTime(i.CreatedAt),
		UpdatedAt: parseTime(i.UpdatedAt),
	}
}

func entityKey(uri string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: entityPK(uri)},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// Get retrieves an entity by kind and URI
func (s *Store) Get(ctx context.Context, kind entities.Kind, uri string) (entities.UID, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            entityKey(uri),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, mapError("get entity", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError(string(kind) + " " + uri)
	}

	var item entityItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	if kind != "" && entities.Kind(item.Kind) != kind {
		return nil, apperrors.NewNotFoundError(string(kind) + " " + uri)
	}
	return entities.FromSnapshot(item.snapshot())
}

// GetLike queries the kind index and filters by pattern, ordered by name.
// A literal pattern prefix on the name narrows the index range.
func (s *Store) GetLike(ctx context.Context, kind entities.Kind, field, pattern string, limit int) ([]entities.UID, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(kindGSI(string(kind))))
	if field == "name" {
		if prefix := literalPrefix(strings.ToLower(pattern)); prefix != "" {
			keyCond = keyCond.And(expression.Key("GSI1SK").BeginsWith(prefix))
		}
	}

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
	}

	snaps := make([]entities.Snapshot, 0)
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError("query entities", err)
		}
		for _, raw := range page.Items {
			var item entityItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				s.logger.Warn("Failed to parse entity item", zap.Error(err))
				continue
			}
			snap := item.snapshot()
			if ports.MatchLike(pattern, snap.Field(field)) {
				snaps = append(snaps, snap)
			}
		}
	}

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Name != snaps[j].Name {
			return snaps[i].Name < snaps[j].Name
		}
		return snaps[i].URI < snaps[j].URI
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}

	out := make([]entities.UID, 0, len(snaps))
	for _, snap := range snaps {
		uid, err := entities.FromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, nil
}

// Save upserts an entity, keeping the original creation time
func (s *Store) Save(ctx context.Context, entity entities.UID) error {
	snap := entity.Snapshot()
	if snap.URI == "" {
		return apperrors.NewValidationError("entity uri is required")
	}
	fields := snap.Fields
	if fields == nil {
		fields = map[string]string{}
	}

	update := expression.
		Set(expression.Name("GSI1PK"), expression.Value(kindGSI(string(snap.Kind)))).
		Set(expression.Name("GSI1SK"), expression.Value(nameSortKey(snap.Name, snap.URI))).
		Set(expression.Name("EntityType"), expression.Value(entityTypeEntity)).
		Set(expression.Name("URI"), expression.Value(snap.URI)).
		Set(expression.Name("Kind"), expression.Value(string(snap.Kind))).
		Set(expression.Name("Name"), expression.Value(snap.Name)).
		Set(expression.Name("Fields"), expression.Value(fields)).
		Set(expression.Name("CreatedAt"), expression.IfNotExists(expression.Name("CreatedAt"), expression.Value(formatTime(snap.CreatedAt)))).
		Set(expression.Name("UpdatedAt"), expression.Value(formatTime(snap.UpdatedAt)))

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       entityKey(snap.URI),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		s.logger.Error("Failed to save entity", zap.String("uri", snap.URI), zap.Error(err))
		return mapError("save entity", err)
	}

	s.logger.Debug("Entity saved", zap.String("uri", snap.URI), zap.String("kind", string(snap.Kind)))
	return nil
}

// Remove deletes an entity's metadata row; its link rows are owned by the links
func (s *Store) Remove(ctx context.Context, uri string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       entityKey(uri),
	})
	if err != nil {
		return mapError("remove entity", err)
	}
	return nil
}

// literalPrefix returns the pattern text before the first wildcard, unescaped
func literalPrefix(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '%', '_':
			return b.String()
		case ports.LikeEscape:
			if i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			}
		default:
			b.WriteRune(r)
		}
	}
	// No wildcard: the whole name is fixed, followed by the URI separator
	return b.String() + "#"
}
