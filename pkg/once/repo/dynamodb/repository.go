package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/once/pkg/once"
)

// Client defines the DynamoDB operations used by the repository.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DefaultTable is the table name used when none is configured
const DefaultTable = "once-files"

const (
	attrID         = "id"
	attrObjectName = "object_name"
	attrState      = "state"
	attrCreatedAt  = "created_at"
	attrServedAt   = "served_at"
)

// Repository implements once.Repository on a DynamoDB table keyed by id.
type Repository struct {
	client Client
	table  string
}

// New creates a repository for table
func New(client Client, table string) *Repository {
	if table == "" {
		table = DefaultTable
	}
	return &Repository{client: client, table: table}
}

func (r *Repository) CreateEntry(ctx context.Context, entry *once.Entry) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item: map[string]dbtypes.AttributeValue{
			attrID:         &dbtypes.AttributeValueMemberS{Value: entry.ID},
			attrObjectName: &dbtypes.AttributeValueMemberS{Value: entry.ObjectName},
			attrState:      &dbtypes.AttributeValueMemberS{Value: string(entry.State)},
			attrCreatedAt:  &dbtypes.AttributeValueMemberS{Value: entry.CreatedAt.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": attrID,
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return once.ErrEntryExists
		}
		return fmt.Errorf("dynamodb: put entry: %w", err)
	}
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, id string) (*once.Entry, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: get entry: %w", err)
	}
	if result.Item == nil {
		return nil, once.ErrEntryNotFound
	}
	return decodeEntry(result.Item)
}

// MarkServed performs the pending to served transition as a conditional
// update; DynamoDB rejects all but one concurrent writer.
func (r *Repository) MarkServed(ctx context.Context, id string, servedAt time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 key(id),
		UpdateExpression:    aws.String("SET #state = :served, #served_at = :served_at"),
		ConditionExpression: aws.String("attribute_exists(#id) AND #state = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#id":        attrID,
			"#state":     attrState,
			"#served_at": attrServedAt,
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":served":    &dbtypes.AttributeValueMemberS{Value: string(once.EntryStateServed)},
			":pending":   &dbtypes.AttributeValueMemberS{Value: string(once.EntryStatePending)},
			":served_at": &dbtypes.AttributeValueMemberS{Value: servedAt.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err == nil {
		return nil
	}
	if !isConditionFailed(err) {
		return fmt.Errorf("dynamodb: mark served: %w", err)
	}

	if _, err := r.GetEntry(ctx, id); err != nil {
		return err
	}
	return once.ErrEntryAlreadyServed
}

func (r *Repository) ListEntriesByState(ctx context.Context, state once.EntryState) ([]*once.Entry, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.table),
		FilterExpression: aws.String("#state = :state"),
		ExpressionAttributeNames: map[string]string{
			"#state": attrState,
		},
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":state": &dbtypes.AttributeValueMemberS{Value: string(state)},
		},
		ConsistentRead: aws.Bool(true),
	}

	var entries []*once.Entry
	for {
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: scan entries: %w", err)
		}
		for _, item := range out.Items {
			entry, err := decodeEntry(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.table),
		Key:                 key(id),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": attrID,
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return once.ErrEntryNotFound
		}
		return fmt.Errorf("dynamodb: delete entry: %w", err)
	}
	return nil
}

func key(id string) map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		attrID: &dbtypes.AttributeValueMemberS{Value: id},
	}
}

func isConditionFailed(err error) bool {
	var ccf *dbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func stringAttr(item map[string]dbtypes.AttributeValue, name string) (string, bool) {
	v, ok := item[name].(*dbtypes.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}

func decodeEntry(item map[string]dbtypes.AttributeValue) (*once.Entry, error) {
	id, ok := stringAttr(item, attrID)
	if !ok {
		return nil, fmt.Errorf("dynamodb: invalid %s attribute", attrID)
	}
	objectName, ok := stringAttr(item, attrObjectName)
	if !ok {
		return nil, fmt.Errorf("dynamodb: invalid %s attribute", attrObjectName)
	}

	entry := &once.Entry{
		ID:         id,
		ObjectName: objectName,
		State:      once.EntryStatePending,
	}

	if state, ok := stringAttr(item, attrState); ok {
		entry.State = once.EntryState(state)
	}
	if created, ok := stringAttr(item, attrCreatedAt); ok {
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			entry.CreatedAt = t
		}
	}
	if served, ok := stringAttr(item, attrServedAt); ok {
		if t, err := time.Parse(time.RFC3339Nano, served); err == nil {
			entry.ServedAt = &t
		}
	}
	return entry, nil
}
