package locations

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/gpstracker/internal/server/models"
)

// sortKeyLayout is fixed-width so sort keys order lexicographically by time.
const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

// DynamoDBAPI is the part of *dynamodb.Client used here.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// dynamoItem is the table layout: partition key "username", sort key "sk"
// built from the capture time and the row id.
type dynamoItem struct {
	Username   string    `dynamodbav:"username"`
	SortKey    string    `dynamodbav:"sk"`
	ID         string    `dynamodbav:"id"`
	Latitude   float64   `dynamodbav:"latitude"`
	Longitude  float64   `dynamodbav:"longitude"`
	CapturedAt time.Time `dynamodbav:"captured_at"`
	Accuracy   *float64  `dynamodbav:"accuracy,omitempty"`
}

type DynamoDBRepository struct {
	client    DynamoDBAPI
	tableName string
	newID     func() string
}

func NewDynamoDBRepository(client DynamoDBAPI, tableName string) *DynamoDBRepository {
	return &DynamoDBRepository{client: client, tableName: tableName, newID: uuid.NewString}
}

func (r *DynamoDBRepository) Append(ctx context.Context, loc *models.Location) (*models.Location, error) {
	out := *loc
	out.ID = r.newID()

	item, err := attributevalue.MarshalMap(dynamoItem{
		Username:   out.Username,
		SortKey:    sortKey(out.CapturedAt, out.ID),
		ID:         out.ID,
		Latitude:   out.Latitude,
		Longitude:  out.Longitude,
		CapturedAt: out.CapturedAt,
		Accuracy:   out.Accuracy,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal location: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb put: %w", err)
	}

	return &out, nil
}

func (r *DynamoDBRepository) Recent(ctx context.Context, username string, limit int) ([]models.Location, error) {
	out, err := r.query(ctx, username, false, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (r *DynamoDBRepository) All(ctx context.Context, username string) ([]models.Location, error) {
	return r.query(ctx, username, true, 0)
}

func (r *DynamoDBRepository) Exists(ctx context.Context, username string) (bool, error) {
	out, err := r.query(ctx, username, true, 1)
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

// query pages through the user's partition. A limit of 0 means no limit.
func (r *DynamoDBRepository) query(ctx context.Context, username string, forward bool, limit int) ([]models.Location, error) {
	out := make([]models.Location, 0)
	var lastKey map[string]dynamodbtypes.AttributeValue

	for {
		in := &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("username = :u"),
			ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
				":u": &dynamodbtypes.AttributeValueMemberS{Value: username},
			},
			ScanIndexForward:  aws.Bool(forward),
			ExclusiveStartKey: lastKey,
		}
		if limit > 0 {
			in.Limit = aws.Int32(int32(limit - len(out)))
		}

		res, err := r.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query: %w", err)
		}

		for _, raw := range res.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshal location: %w", err)
			}
			out = append(out, models.Location{
				ID:         item.ID,
				Username:   item.Username,
				Latitude:   item.Latitude,
				Longitude:  item.Longitude,
				CapturedAt: item.CapturedAt,
				Accuracy:   item.Accuracy,
			})
		}

		lastKey = res.LastEvaluatedKey
		if lastKey == nil || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
	}
}

func sortKey(t time.Time, id string) string {
	return t.UTC().Format(sortKeyLayout) + "#" + id
}
