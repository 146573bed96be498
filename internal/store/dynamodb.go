package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Attribute names of the configs table.
const (
	attrServiceID  = "service_id"
	attrConfigName = "config_name"
	attrConfig     = "config"
	attrUpdatedAt  = "updated_at"
)

// maxUpdateAttempts bounds the optimistic retry loop in UpdateConfig.
const maxUpdateAttempts = 3

// dynamoAPI is the subset of DynamoDB operations needed by the store.
type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// item is the table representation of a Record. Every attribute is a
// string: config holds the JSON payload, timestamps hold Unix seconds.
type item struct {
	ServiceID  string `dynamodbav:"service_id"`
	ConfigName string `dynamodbav:"config_name"`
	Config     string `dynamodbav:"config"`
	CreatedAt  string `dynamodbav:"created_at"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

func (it item) record() (Record, error) {
	cfg, err := decodeConfig(it.Config)
	if err != nil {
		return Record{}, err
	}
	created, err := parseTimestamp(it.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("created_at: %w", err)
	}
	updated, err := parseTimestamp(it.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("updated_at: %w", err)
	}
	return Record{
		UpdatedAt:  updated,
		ServiceID:  it.ServiceID,
		CreatedAt:  created,
		ConfigName: it.ConfigName,
		Config:     cfg,
	}, nil
}

func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// DynamoStore implements Store on a DynamoDB table with partition key
// service_id and sort key config_name. Reads are strongly consistent.
type DynamoStore struct {
	client dynamoAPI
	table  string
	logger *slog.Logger
	now    func() time.Time
}

// DynamoStoreConfig holds options for creating a DynamoStore.
type DynamoStoreConfig struct {
	// TableName is the configs table.
	TableName string
	// Region is the AWS region. If empty, it's resolved from the environment.
	Region string
	// EndpointURL overrides the DynamoDB endpoint (useful for LocalStack).
	EndpointURL string
	// AccessKeyID and SecretAccessKey, when set, replace the default
	// credential chain with static credentials.
	AccessKeyID     string
	SecretAccessKey string
}

// NewDynamoStore creates a new DynamoStore. Unless static keys are given,
// AWS credentials are resolved from the standard chain.
func NewDynamoStore(ctx context.Context, cfg DynamoStoreConfig, logger *slog.Logger) (*DynamoStore, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.EndpointURL != "" {
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	logger.Info("created dynamodb client", "region", awsCfg.Region, "table", cfg.TableName)

	return NewDynamoStoreFromClient(dynamodb.NewFromConfig(awsCfg, ddbOpts...), cfg.TableName, logger), nil
}

// NewDynamoStoreFromClient creates a DynamoStore with a pre-configured
// client. This is useful for testing.
func NewDynamoStoreFromClient(client dynamoAPI, table string, logger *slog.Logger) *DynamoStore {
	return &DynamoStore{
		client: client,
		table:  table,
		logger: logger,
		now:    time.Now,
	}
}

// TableName returns the configs table backing the store.
func (s *DynamoStore) TableName() string {
	return s.table
}

// AddConfig writes the record with PutItem, overwriting any existing entry.
func (s *DynamoStore) AddConfig(ctx context.Context, serviceID, configName string, cfg map[string]any) (bool, error) {
	encoded, err := encodeConfig(cfg)
	if err != nil {
		return false, &Error{Kind: KindInvalid, Op: "add", Err: err}
	}

	ts := strconv.FormatInt(s.now().Unix(), 10)
	av, err := attributevalue.MarshalMap(item{
		ServiceID:  serviceID,
		ConfigName: configName,
		Config:     encoded,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	})
	if err != nil {
		return false, &Error{Kind: KindInvalid, Op: "add", Err: err}
	}

	s.logger.Info("inserting config into dynamodb",
		"service_id", serviceID, "config_name", configName, "table", s.table)

	out, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return false, s.fail("add", Query{ServiceID: serviceID, ConfigName: configName}, err)
	}

	status := responseStatus(out.ResultMetadata)
	s.logger.Info("done writing config to dynamodb", "service_id", serviceID, "config_name", configName, "status", status)

	return status >= 200 && status < 300, nil
}

// GetConfigs reads one record with GetItem or a whole service with Query.
func (s *DynamoStore) GetConfigs(ctx context.Context, q Query) ([]Record, error) {
	if q.ServiceID == "" {
		s.logger.Error("mandatory query field is missing", "field", attrServiceID, "config_name", q.ConfigName)
		return nil, nil
	}

	if q.ConfigName != "" {
		it, err := s.getItem(ctx, q)
		if err != nil {
			return nil, err
		}
		if it == nil {
			return []Record{}, nil
		}
		rec, err := it.record()
		if err != nil {
			return nil, s.fail("get", q, err)
		}
		return []Record{rec}, nil
	}

	return s.queryService(ctx, q.ServiceID)
}

func (s *DynamoStore) getItem(ctx context.Context, q Query) (*item, error) {
	s.logger.Debug("reading config from dynamodb", "service_id", q.ServiceID, "config_name", q.ConfigName, "table", s.table)

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(q),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.fail("get", q, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, s.fail("get", q, err)
	}
	return &it, nil
}

func (s *DynamoStore) queryService(ctx context.Context, serviceID string) ([]Record, error) {
	q := Query{ServiceID: serviceID}
	s.logger.Debug("reading service configs from dynamodb", "service_id", serviceID, "table", s.table)

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		ConsistentRead:         aws.Bool(true),
		KeyConditionExpression: aws.String("#service_id = :service_id"),
		ExpressionAttributeNames: map[string]string{
			"#service_id": attrServiceID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":service_id": &types.AttributeValueMemberS{Value: serviceID},
		},
	})

	records := []Record{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.fail("get", q, err)
		}

		var items []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, s.fail("get", q, err)
		}
		for _, it := range items {
			rec, err := it.record()
			if err != nil {
				return nil, s.fail("get", q, err)
			}
			records = append(records, rec)
		}
	}

	return records, nil
}

// UpdateConfig replaces the config payload with a conditional UpdateItem.
// The write only succeeds if updated_at still holds the value that was
// read, so a concurrent update is never silently overwritten; on a lost
// race the record is re-read and the write retried.
func (s *DynamoStore) UpdateConfig(ctx context.Context, q Query, cfg map[string]any) (bool, error) {
	if q.ServiceID == "" || q.ConfigName == "" {
		s.logger.Error("mandatory update fields are missing", "service_id", q.ServiceID, "config_name", q.ConfigName)
		return false, &Error{Kind: KindInvalid, Op: "update " + q.String()}
	}

	encoded, err := encodeConfig(cfg)
	if err != nil {
		return false, &Error{Kind: KindInvalid, Op: "update " + q.String(), Err: err}
	}

	s.logger.Info("updating config", "service_id", q.ServiceID, "config_name", q.ConfigName, "status", "in-progress")

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := s.getItem(ctx, q)
		if err != nil {
			return false, err
		}
		if current == nil {
			s.logger.Info("config to update does not exist", "service_id", q.ServiceID, "config_name", q.ConfigName)
			return false, &Error{Kind: KindNotFound, Op: "update " + q.String()}
		}

		prev, err := parseTimestamp(current.UpdatedAt)
		if err != nil {
			return false, s.fail("update", q, fmt.Errorf("updated_at: %w", err))
		}
		next := nextUpdatedAt(s.now().Unix(), prev)

		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.table),
			Key:                 itemKey(q),
			UpdateExpression:    aws.String("SET #config = :config, #updated_at = :updated_at"),
			ConditionExpression: aws.String("attribute_exists(#service_id) AND #updated_at = :prev"),
			ExpressionAttributeNames: map[string]string{
				"#service_id": attrServiceID,
				"#config":     attrConfig,
				"#updated_at": attrUpdatedAt,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":config":     &types.AttributeValueMemberS{Value: encoded},
				":updated_at": &types.AttributeValueMemberS{Value: strconv.FormatInt(next, 10)},
				":prev":       &types.AttributeValueMemberS{Value: current.UpdatedAt},
			},
		})
		if err == nil {
			s.logger.Info("done updating config", "service_id", q.ServiceID, "config_name", q.ConfigName, "updated_at", next)
			return true, nil
		}

		var condErr *types.ConditionalCheckFailedException
		if !errors.As(err, &condErr) {
			return false, s.fail("update", q, err)
		}
		s.logger.Warn("config changed concurrently, retrying update",
			"service_id", q.ServiceID, "config_name", q.ConfigName, "attempt", attempt)
	}

	return false, &Error{Kind: KindConflict, Op: "update " + q.String()}
}

// DeleteConfig is not supported.
func (s *DynamoStore) DeleteConfig(_ context.Context, q Query) (bool, error) {
	return false, &Error{Kind: KindNotSupported, Op: "delete " + q.String()}
}

// Close is a no-op for DynamoStore (the client holds no persistent resources).
func (s *DynamoStore) Close() error {
	return nil
}

// fail logs a backend error with full detail and returns the typed error
// handed to callers.
func (s *DynamoStore) fail(op string, q Query, err error) error {
	kind := classify(err)
	s.logger.Error("dynamodb operation failed",
		"op", op,
		"service_id", q.ServiceID,
		"config_name", q.ConfigName,
		"table", s.table,
		"kind", kind.String(),
		"error", err,
	)
	return &Error{Kind: kind, Op: op + " " + q.String(), Err: err}
}

// classify maps an AWS SDK error to a store Kind. Errors where the request
// never reached DynamoDB, or was rejected for its credentials, are
// connectivity errors.
func classify(err error) Kind {
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return KindConnectivity
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "UnrecognizedClientException",
			"InvalidClientTokenId",
			"InvalidSignatureException",
			"ExpiredTokenException",
			"MissingAuthenticationToken",
			"IncompleteSignature":
			return KindConnectivity
		}
		return KindBackend
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}
	// Credential resolution failures are plain wrapped errors.
	if strings.Contains(err.Error(), "failed to retrieve credentials") {
		return KindConnectivity
	}
	return KindBackend
}

// responseStatus returns the HTTP status of the raw response recorded in
// the operation metadata, or 200 when none was recorded.
func responseStatus(md middleware.Metadata) int {
	if resp, ok := awsmiddleware.GetRawResponse(md).(*smithyhttp.Response); ok && resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	return http.StatusOK
}

func itemKey(q Query) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrServiceID:  &types.AttributeValueMemberS{Value: q.ServiceID},
		attrConfigName: &types.AttributeValueMemberS{Value: q.ConfigName},
	}
}
