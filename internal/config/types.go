package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ServerConfig holds the config-manager server's operational configuration.
type ServerConfig struct {
	// ListenAddr is the address for the HTTP API (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr" validate:"required"`
	// BasePath is an optional prefix for the config routes (e.g. "/adobe/v1").
	// /healthz and /metrics are always served at the root.
	BasePath string `yaml:"base_path,omitempty"`
	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	// LogFormat selects the slog handler: "text" or "json".
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
	// StoreType is the backing store: "dynamodb" or "memory".
	StoreType string `yaml:"store_type"`
	// DynamoDB configures the DynamoDB table backing the store.
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	// Detector configures the background change detector.
	Detector DetectorConfig `yaml:"detector"`
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c ServerConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// DynamoDBConfig describes how to reach the configs table.
type DynamoDBConfig struct {
	// Host is the DynamoDB host. Empty means the regional AWS endpoint.
	// Hosts containing "localstack" are reached over plain HTTP on Port.
	Host string `yaml:"host,omitempty"`
	// Port is only used for LocalStack hosts.
	Port int `yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	// Username is a static access key ID. When empty, credentials are
	// resolved from the standard chain.
	Username string `yaml:"username,omitempty"`
	// Password is the static secret access key paired with Username.
	Password string `yaml:"password,omitempty"`
	// TablePrefix is prepended to "_configs" to form the table name.
	TablePrefix string `yaml:"table_prefix" validate:"required"`
	// Region is the AWS region of the table.
	Region string `yaml:"region"`
	// CreateTable provisions the table at startup if it does not exist.
	CreateTable bool `yaml:"create_table"`
	// ReadCapacity and WriteCapacity are the provisioned throughput used
	// when the table is created.
	ReadCapacity  int64 `yaml:"read_capacity" validate:"gt=0"`
	WriteCapacity int64 `yaml:"write_capacity" validate:"gt=0"`
}

// TableName returns the name of the configs table.
func (c DynamoDBConfig) TableName() string {
	return c.TablePrefix + "_configs"
}

// EndpointURL returns the endpoint override for the DynamoDB client, or ""
// to use the default AWS endpoint resolution.
func (c DynamoDBConfig) EndpointURL() string {
	switch {
	case c.Host == "":
		return ""
	case strings.HasPrefix(c.Host, "http://"), strings.HasPrefix(c.Host, "https://"):
		return c.Host
	case strings.Contains(c.Host, "localstack"):
		return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
	default:
		return "https://" + c.Host
	}
}

// DetectorConfig configures the change detector and its notification sinks.
type DetectorConfig struct {
	// Enabled starts the detector alongside the HTTP API.
	Enabled bool `yaml:"enabled"`
	// ServiceIDs lists the services whose configuration sets are polled.
	ServiceIDs []string `yaml:"service_ids" validate:"required_if=Enabled true,dive,required"`
	// Interval is how often the detector polls.
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	// DetectRemovals also reports a change when a config disappears from a
	// service's set. Off by default: only new or updated configs count.
	DetectRemovals bool `yaml:"detect_removals,omitempty"`
	// ExportDir, when set, receives <service_id>.json snapshots on change.
	ExportDir string `yaml:"export_dir,omitempty"`
	// S3Bucket, when set, receives <s3_prefix><service_id>/configs.json
	// snapshots on change.
	S3Bucket string `yaml:"s3_bucket,omitempty"`
	// S3Prefix is an optional key prefix. Include trailing slash.
	S3Prefix string `yaml:"s3_prefix,omitempty"`
	// S3Region is the bucket's region. If empty, resolved from the environment.
	S3Region string `yaml:"s3_region,omitempty"`
	// S3EndpointURL overrides the S3 endpoint (LocalStack/MinIO).
	S3EndpointURL string `yaml:"s3_endpoint_url,omitempty"`
	// CloudWatchNamespace, when set, receives a ConfigChanges metric per change.
	CloudWatchNamespace string `yaml:"cloudwatch_namespace,omitempty"`
	// LambdaFunction, when set, is invoked asynchronously with each change.
	LambdaFunction string `yaml:"lambda_function,omitempty"`
}
