package repomanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dmitrijs2005/gpstracker/internal/server/config"
	"github.com/dmitrijs2005/gpstracker/internal/server/repositories/locations"
)

// DynamoDBClient is the part of *dynamodb.Client the manager needs.
type DynamoDBClient interface {
	locations.DynamoDBAPI
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type DynamoDBRepositoryManager struct {
	client DynamoDBClient
	table  string
}

// OpenDynamoDB builds a client from the default AWS credential chain.
// AWSEndpoint, when set, points it at a local emulator.
func OpenDynamoDB(ctx context.Context, cfg *config.Config) (*DynamoDBRepositoryManager, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
		}
	})

	return NewDynamoDBRepositoryManager(client, cfg.DynamoTable), nil
}

func NewDynamoDBRepositoryManager(client DynamoDBClient, table string) *DynamoDBRepositoryManager {
	return &DynamoDBRepositoryManager{client: client, table: table}
}

func (m *DynamoDBRepositoryManager) Name() string { return config.StorageDynamoDB }

// RunMigrations creates the table when it does not exist yet.
func (m *DynamoDBRepositoryManager) RunMigrations(ctx context.Context) error {
	_, err := m.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(m.table),
		AttributeDefinitions: []dynamodbtypes.AttributeDefinition{
			{AttributeName: aws.String("username"), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: dynamodbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []dynamodbtypes.KeySchemaElement{
			{AttributeName: aws.String("username"), KeyType: dynamodbtypes.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: dynamodbtypes.KeyTypeRange},
		},
		BillingMode: dynamodbtypes.BillingModePayPerRequest,
	})

	var inUse *dynamodbtypes.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table %s: %w", m.table, err)
	}
	return nil
}

func (m *DynamoDBRepositoryManager) Locations() locations.Repository {
	return locations.NewDynamoDBRepository(m.client, m.table)
}

func (m *DynamoDBRepositoryManager) Close() error { return nil }
