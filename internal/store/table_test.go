package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

func TestEnsureTable_Existing(t *testing.T) {
	fake := newFakeDynamo()
	s := newTestDynamoStore(fake, newClock())

	if err := s.EnsureTable(context.Background(), 100, 100); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if fake.createInput != nil {
		t.Error("expected no CreateTable call for an existing table")
	}
}

func TestEnsureTable_CreatesMissingTable(t *testing.T) {
	fake := newFakeDynamo()
	fake.tableExists = false
	s := newTestDynamoStore(fake, newClock())

	if err := s.EnsureTable(context.Background(), 25, 10); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	in := fake.createInput
	if in == nil {
		t.Fatal("expected CreateTable call")
	}
	if aws.ToString(in.TableName) != "services_configs" {
		t.Errorf("unexpected table name %s", aws.ToString(in.TableName))
	}

	keys := map[string]types.KeyType{}
	for _, k := range in.KeySchema {
		keys[aws.ToString(k.AttributeName)] = k.KeyType
	}
	if keys["service_id"] != types.KeyTypeHash {
		t.Errorf("expected service_id HASH key, got %v", keys["service_id"])
	}
	if keys["config_name"] != types.KeyTypeRange {
		t.Errorf("expected config_name RANGE key, got %v", keys["config_name"])
	}
	for _, def := range in.AttributeDefinitions {
		if def.AttributeType != types.ScalarAttributeTypeS {
			t.Errorf("expected string attribute for %s, got %v", aws.ToString(def.AttributeName), def.AttributeType)
		}
	}
	if aws.ToInt64(in.ProvisionedThroughput.ReadCapacityUnits) != 25 ||
		aws.ToInt64(in.ProvisionedThroughput.WriteCapacityUnits) != 10 {
		t.Errorf("unexpected throughput %+v", in.ProvisionedThroughput)
	}
}

func TestEnsureTable_CreatedConcurrently(t *testing.T) {
	fake := newFakeDynamo()
	fake.tableExists = false
	fake.errs["CreateTable"] = &types.ResourceInUseException{Message: aws.String("Table already exists")}
	s := newTestDynamoStore(fake, newClock())

	if err := s.EnsureTable(context.Background(), 100, 100); err != nil {
		t.Fatalf("expected ResourceInUse to be tolerated, got %v", err)
	}
}

func TestEnsureTable_DescribeFails(t *testing.T) {
	fake := newFakeDynamo()
	fake.errs["DescribeTable"] = &smithy.GenericAPIError{Code: "UnrecognizedClientException"}
	s := newTestDynamoStore(fake, newClock())

	err := s.EnsureTable(context.Background(), 100, 100)
	if !errors.Is(err, ErrConnectivity) {
		t.Errorf("expected ErrConnectivity, got %v", err)
	}
	if fake.createInput != nil {
		t.Error("must not create a table when describe fails for another reason")
	}
}
