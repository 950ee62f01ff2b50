// Package dynamodb implements the persistence ports on a single DynamoDB table.
//
// Key layout:
//
//	ENTITY#<uri>   METADATA     entity; GSI1 KIND#<kind> / <lowercased name>#<uri>
//	ENTITY#<uri>   LINK#<id>    copy of every link touching the entity
//	LINK#<id>      METADATA     link
//	PENDING#<id>   METADATA     pending action; GSI1 PENDING#<status> / <created>#<id>
//	LOCK#<key>     LOCK         distributed lock
package dynamodb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/VadimShubkin/ii/application/ports"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

const (
	metadataSK = "METADATA"

	entityTypeEntity  = "ENTITY"
	entityTypeLink    = "LINK"
	entityTypeLinkRef = "LINK_REF"
	entityTypePending = "PENDING"

	// sortableTime keeps GSI sort keys in chronological order
	sortableTime = "2006-01-02T15:04:05.000000000Z"
)

// Client is the subset of the DynamoDB API the store uses
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Store implements ports.Store using DynamoDB
type Store struct {
	client    Client
	tableName string
	indexName string
	logger    *zap.Logger
}

var _ ports.Store = (*Store)(nil)

// NewStore creates a new DynamoDB store
func NewStore(client Client, tableName, indexName string, logger *zap.Logger) *Store {
	if indexName == "" {
		indexName = "GSI1"
	}
	return &Store{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

func entityPK(uri string) string { return "ENTITY#" + uri }
func linkPK(id string) string { return "LINK#" + id }
func linkRefSK(id string) string { return "LINK#" + id }
func pendingPK(id string) string { return "PENDING#" + id }
func kindGSI(kind string) string { return "KIND#" + kind }
func statusGSI(s string) string { return "PENDING#" + s }
func nameSortKey(name, uri string) string {
	return strings.ToLower(name) + "#" + uri
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// mapError converts SDK errors into application errors
func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ProvisionedThroughputExceededException",
			"RequestLimitExceeded",
			"ThrottlingException",
			"ServiceUnavailable",
			"InternalServerError":
			return apperrors.NewUnavailableError("dynamodb").WithCause(err)
		case "ConditionalCheckFailedException":
			return apperrors.NewConflictError(operation + ": conditional check failed").WithCause(err)
		case "ValidationException":
			return apperrors.NewValidationError(operation + ": " + ae.ErrorMessage()).WithCause(err)
		}
	}
	return apperrors.NewDatabaseError(operation, err)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}
