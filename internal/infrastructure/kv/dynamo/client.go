package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/avatarctic/identity-kv/internal/infrastructure/kv"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

// tableActiveTimeout bounds the wait for a freshly created table.
const tableActiveTimeout = 2 * time.Minute

// Options selects the region, credentials and endpoint of the client.
type Options struct {
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the service URL, e.g. for DynamoDB Local.
	Endpoint string
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
// Static keys, when both are set, take precedence.
func NewClient(ctx context.Context, opts Options) (*dynamodb.Client, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// EnsureTables creates every missing table with on-demand billing. Keys and
// index attributes are declared as strings.
func EnsureTables(ctx context.Context, api API, tables []kv.Table, logger *logrus.Logger) error {
	for _, t := range tables {
		_, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.Name)})
		if err == nil {
			continue
		}
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to describe table %s: %w", t.Name, err)
		}

		if _, err := api.CreateTable(ctx, createTableInput(t)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
		waiter := dynamodb.NewTableExistsWaiter(api)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.Name)}, tableActiveTimeout); err != nil {
			return fmt.Errorf("table %s did not become active: %w", t.Name, err)
		}
		if logger != nil {
			logger.WithFields(logrus.Fields{"table": t.Name, "indexes": len(t.Indexes)}).Info("dynamo: table created")
		}
	}
	return nil
}

func createTableInput(t kv.Table) *dynamodb.CreateTableInput {
	attrs := map[string]bool{t.Key: true}
	indexNames := make([]string, 0, len(t.Indexes))
	for index, attr := range t.Indexes {
		indexNames = append(indexNames, index)
		attrs[attr] = true
	}
	sort.Strings(indexNames)

	names := make([]string, 0, len(attrs))
	for a := range attrs {
		names = append(names, a)
	}
	sort.Strings(names)

	definitions := make([]types.AttributeDefinition, 0, len(names))
	for _, a := range names {
		definitions = append(definitions, types.AttributeDefinition{
			AttributeName: aws.String(a),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}

	indexes := make([]types.GlobalSecondaryIndex, 0, len(indexNames))
	for _, index := range indexNames {
		indexes = append(indexes, types.GlobalSecondaryIndex{
			IndexName: aws.String(index),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(t.Indexes[index]), KeyType: types.KeyTypeHash},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(t.Name),
		AttributeDefinitions: definitions,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(t.Key), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
	if len(indexes) > 0 {
		input.GlobalSecondaryIndexes = indexes
	}
	return input
}
