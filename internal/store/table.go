package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableWaitTimeout bounds how long EnsureTable waits for a new table.
const tableWaitTimeout = 2 * time.Minute

// EnsureTable creates the configs table if it does not exist yet and waits
// until it is active. The key schema is service_id (HASH) and config_name
// (RANGE), both strings.
func (s *DynamoStore) EnsureTable(ctx context.Context, readCapacity, writeCapacity int64) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err == nil {
		s.logger.Info("table already exists", "table", s.table)
		return nil
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return s.fail("describe table", Query{}, err)
	}

	s.logger.Info("table does not exist, creating", "table", s.table)

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrServiceID), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrConfigName), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrServiceID), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrConfigName), KeyType: types.KeyTypeRange},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(readCapacity),
			WriteCapacityUnits: aws.Int64(writeCapacity),
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return s.fail("create table", Query{}, err)
		}
		// Another instance created it first.
		s.logger.Info("table is being created by another instance", "table", s.table)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, tableWaitTimeout); err != nil {
		return fmt.Errorf("waiting for table %s: %w", s.table, err)
	}

	s.logger.Info("created dynamodb table", "table", s.table)
	return nil
}
