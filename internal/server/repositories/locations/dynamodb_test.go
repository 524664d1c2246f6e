package locations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

// fakeDynamo keeps items per partition and honours the Query fields the
// repository sets, with a small page size to exercise pagination.
type fakeDynamo struct {
	mu       sync.Mutex
	items    map[string][]map[string]dynamodbtypes.AttributeValue
	pageSize int
	queries  int
	err      error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string][]map[string]dynamodbtypes.AttributeValue{}, pageSize: 2}
}

func str(av dynamodbtypes.AttributeValue) string {
	if s, ok := av.(*dynamodbtypes.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u := str(in.Item["username"])
	f.items[u] = append(f.items[u], in.Item)
	sort.Slice(f.items[u], func(i, j int) bool { return str(f.items[u][i]["sk"]) < str(f.items[u][j]["sk"]) })
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.err != nil {
		return nil, f.err
	}

	all := append([]map[string]dynamodbtypes.AttributeValue(nil), f.items[str(in.ExpressionAttributeValues[":u"])]...)
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		sk := str(in.ExclusiveStartKey["sk"])
		for i, it := range all {
			if str(it["sk"]) == sk {
				start = i + 1
				break
			}
		}
	}

	n := f.pageSize
	if in.Limit != nil && int(*in.Limit) < n {
		n = int(*in.Limit)
	}
	end := min(start+n, len(all))
	page := all[start:end]

	out := &dynamodb.QueryOutput{Items: page, Count: int32(len(page))}
	if end < len(all) && len(page) > 0 {
		last := page[len(page)-1]
		out.LastEvaluatedKey = map[string]dynamodbtypes.AttributeValue{"username": last["username"], "sk": last["sk"]}
	}
	return out, nil
}

func newDynamoRepo(f *fakeDynamo) *DynamoDBRepository {
	r := NewDynamoDBRepository(f, "locations")
	n := 0
	r.newID = func() string { n++; return fmt.Sprintf("id-%02d", n) }
	return r
}

func TestDynamoDB_AppendAndRecent(t *testing.T) {
	f := newFakeDynamo()
	repo := newDynamoRepo(f)
	ctx := context.Background()

	acc := 3.0
	for i := 0; i < 5; i++ {
		_, err := repo.Append(ctx, &models.Location{
			Username: "alice", Latitude: float64(i), Longitude: 0,
			CapturedAt: t0.Add(time.Duration(i) * time.Second), Accuracy: &acc,
		})
		require.NoError(t, err)
	}
	_, err := repo.Append(ctx, &models.Location{Username: "bob", Latitude: 9, CapturedAt: t0})
	require.NoError(t, err)

	got, err := repo.Recent(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{got[0].Latitude, got[1].Latitude, got[2].Latitude})
	require.NotNil(t, got[0].Accuracy)
	assert.Equal(t, 3.0, *got[0].Accuracy)
	assert.True(t, got[0].CapturedAt.Equal(t0.Add(2*time.Second)))

	all, err := repo.All(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, 0.0, all[0].Latitude)
}

func TestDynamoDB_DuplicatesAreSeparateRows(t *testing.T) {
	repo := newDynamoRepo(newFakeDynamo())
	ctx := context.Background()

	loc := &models.Location{Username: "alice", Latitude: 10, Longitude: 20, CapturedAt: t0}
	_, err := repo.Append(ctx, loc)
	require.NoError(t, err)
	_, err = repo.Append(ctx, loc)
	require.NoError(t, err)

	got, err := repo.Recent(ctx, "alice", 50)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDynamoDB_Exists(t *testing.T) {
	repo := newDynamoRepo(newFakeDynamo())
	ctx := context.Background()

	ok, err := repo.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Append(ctx, &models.Location{Username: "alice", CapturedAt: t0})
	require.NoError(t, err)

	ok, err = repo.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDynamoDB_Errors(t *testing.T) {
	f := newFakeDynamo()
	f.err = errors.New("throttled")
	repo := newDynamoRepo(f)

	_, err := repo.Append(context.Background(), &models.Location{Username: "alice", CapturedAt: t0})
	assert.ErrorContains(t, err, "dynamodb put: throttled")

	_, err = repo.Recent(context.Background(), "alice", 10)
	assert.ErrorContains(t, err, "dynamodb query: throttled")
}

func TestSortKeyOrdersByTime(t *testing.T) {
	a := sortKey(t0.Add(999*time.Millisecond), "z")
	b := sortKey(t0.Add(time.Second), "a")
	assert.Less(t, a, b)
	assert.Equal(t, "2026-03-01T12:00:00.000000000Z#x", sortKey(t0, "x"))
}
