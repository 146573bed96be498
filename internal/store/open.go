package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vaibhav2408/config-manager/internal/config"
)

// Open creates the store selected by cfg.StoreType. For DynamoDB the table
// is created at startup when cfg.DynamoDB.CreateTable is set.
func Open(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (Store, error) {
	switch cfg.StoreType {
	case "memory":
		logger.Warn("using in-memory store, configs are lost on restart")
		return NewMemoryStore(logger), nil
	case "dynamodb":
		ds, err := NewDynamoStore(ctx, DynamoStoreConfig{
			TableName:       cfg.DynamoDB.TableName(),
			Region:          cfg.DynamoDB.Region,
			EndpointURL:     cfg.DynamoDB.EndpointURL(),
			AccessKeyID:     cfg.DynamoDB.Username,
			SecretAccessKey: cfg.DynamoDB.Password,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating dynamodb store: %w", err)
		}
		if cfg.DynamoDB.CreateTable {
			if err := ds.EnsureTable(ctx, cfg.DynamoDB.ReadCapacity, cfg.DynamoDB.WriteCapacity); err != nil {
				return nil, fmt.Errorf("ensuring table %s: %w", ds.TableName(), err)
			}
		}
		return ds, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.StoreType)
	}
}
