package dynamodb

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/once/pkg/once"
)

// fakeTable emulates the conditional writes the repository issues. Scan
// returns one item per page to exercise pagination.
type fakeTable struct {
	mu    sync.Mutex
	items map[string]map[string]dbtypes.AttributeValue
	scans int
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]dbtypes.AttributeValue)}
}

func idOf(key map[string]dbtypes.AttributeValue) string {
	return key[attrID].(*dbtypes.AttributeValueMemberS).Value
}

func conditionFailed() error {
	return &dbtypes.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeTable) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := idOf(params.Item)
	if _, exists := f.items[id]; exists && params.ConditionExpression != nil {
		return nil, conditionFailed()
	}
	f.items[id] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[idOf(params.Key)]}, nil
}

func (f *fakeTable) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, exists := f.items[idOf(params.Key)]
	pending := params.ExpressionAttributeValues[":pending"].(*dbtypes.AttributeValueMemberS).Value
	if !exists || item[attrState].(*dbtypes.AttributeValueMemberS).Value != pending {
		return nil, conditionFailed()
	}
	updated := make(map[string]dbtypes.AttributeValue, len(item)+1)
	for k, v := range item {
		updated[k] = v
	}
	updated[attrState] = params.ExpressionAttributeValues[":served"]
	updated[attrServedAt] = params.ExpressionAttributeValues[":served_at"]
	f.items[idOf(params.Key)] = updated
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeTable) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := idOf(params.Key)
	if _, exists := f.items[id]; !exists {
		return nil, conditionFailed()
	}
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeTable) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++

	ids := make([]string, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := ""
	if params.ExclusiveStartKey != nil {
		start = idOf(params.ExclusiveStartKey)
	}
	want := params.ExpressionAttributeValues[":state"].(*dbtypes.AttributeValueMemberS).Value

	for i, id := range ids {
		if id <= start {
			continue
		}
		out := &dynamodb.ScanOutput{}
		if f.items[id][attrState].(*dbtypes.AttributeValueMemberS).Value == want {
			out.Items = []map[string]dbtypes.AttributeValue{f.items[id]}
		}
		if i < len(ids)-1 {
			out.LastEvaluatedKey = key(id)
		}
		return out, nil
	}
	return &dynamodb.ScanOutput{}, nil
}

func newEntry(id string) *once.Entry {
	return &once.Entry{
		ID:         id,
		ObjectName: once.ObjectName(id, "file.txt"),
		State:      once.EntryStatePending,
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRepositoryLifecycle(t *testing.T) {
	table := newFakeTable()
	repo := New(table, "")
	ctx := context.Background()

	require.NoError(t, repo.CreateEntry(ctx, newEntry("abc123")))
	assert.ErrorIs(t, repo.CreateEntry(ctx, newEntry("abc123")), once.ErrEntryExists)

	got, err := repo.GetEntry(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123/file.txt", got.ObjectName)
	assert.Equal(t, once.EntryStatePending, got.State)
	assert.True(t, got.CreatedAt.Equal(newEntry("abc123").CreatedAt))

	_, err = repo.GetEntry(ctx, "zzz999")
	assert.ErrorIs(t, err, once.ErrEntryNotFound)

	require.NoError(t, repo.MarkServed(ctx, "abc123", time.Now()))
	assert.ErrorIs(t, repo.MarkServed(ctx, "abc123", time.Now()), once.ErrEntryAlreadyServed)
	assert.ErrorIs(t, repo.MarkServed(ctx, "zzz999", time.Now()), once.ErrEntryNotFound)

	got, err = repo.GetEntry(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, once.EntryStateServed, got.State)
	assert.NotNil(t, got.ServedAt)

	require.NoError(t, repo.DeleteEntry(ctx, "abc123"))
	assert.ErrorIs(t, repo.DeleteEntry(ctx, "abc123"), once.ErrEntryNotFound)
}

func TestListEntriesByStatePaginates(t *testing.T) {
	table := newFakeTable()
	repo := New(table, "once-files")
	ctx := context.Background()

	for _, id := range []string{"aaaaa1", "aaaaa2", "aaaaa3", "aaaaa4"} {
		require.NoError(t, repo.CreateEntry(ctx, newEntry(id)))
	}
	require.NoError(t, repo.MarkServed(ctx, "aaaaa2", time.Now()))
	require.NoError(t, repo.MarkServed(ctx, "aaaaa4", time.Now()))

	served, err := repo.ListEntriesByState(ctx, once.EntryStateServed)
	require.NoError(t, err)
	require.Len(t, served, 2)
	assert.Equal(t, "aaaaa2", served[0].ID)
	assert.Equal(t, "aaaaa4", served[1].ID)
	assert.Equal(t, 4, table.scans)

	pending, err := repo.ListEntriesByState(ctx, once.EntryStatePending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestMarkServedExactlyOnce(t *testing.T) {
	repo := New(newFakeTable(), "")
	ctx := context.Background()
	require.NoError(t, repo.CreateEntry(ctx, newEntry("race01")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.MarkServed(ctx, "race01", time.Now()) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

type failingClient struct {
	*fakeTable
}

func (f *failingClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return nil, errors.New("throttled")
}

func TestCreateEntryPropagatesErrors(t *testing.T) {
	repo := New(&failingClient{fakeTable: newFakeTable()}, "")
	err := repo.CreateEntry(context.Background(), newEntry("abc123"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, once.ErrEntryExists)
}

func TestDecodeEntryRejectsMalformedItems(t *testing.T) {
	_, err := decodeEntry(map[string]dbtypes.AttributeValue{
		attrID: &dbtypes.AttributeValueMemberN{Value: "1"},
	})
	assert.Error(t, err)
}
