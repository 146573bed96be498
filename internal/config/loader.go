package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultServerConfig returns sensible defaults for the server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
		StoreType:  "dynamodb",
		DynamoDB: DynamoDBConfig{
			Port:          4569,
			TablePrefix:   "services",
			Region:        "us-west-2",
			CreateTable:   true,
			ReadCapacity:  100,
			WriteCapacity: 100,
		},
		Detector: DetectorConfig{
			Interval: 20 * time.Second,
		},
	}
}

// LoadServerConfig reads the server configuration from a YAML file and
// applies defaults for any unset fields. LOG_LEVEL in the environment
// overrides log_level.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading server config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing server config %s: %w", path, err)
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = envLogLevel(lvl)
	}
	cfg.BasePath = strings.TrimSuffix(cfg.BasePath, "/")

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and store-specific requirements.
func Validate(cfg ServerConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	switch cfg.StoreType {
	case "dynamodb":
		if cfg.DynamoDB.Username != "" && cfg.DynamoDB.Password == "" {
			return fmt.Errorf("dynamodb.password is required when dynamodb.username is set")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store_type: %q (expected \"dynamodb\" or \"memory\")", cfg.StoreType)
	}

	if cfg.BasePath != "" && !strings.HasPrefix(cfg.BasePath, "/") {
		return fmt.Errorf("base_path must start with /: %q", cfg.BasePath)
	}

	return nil
}

// LoadServerConfigFromEnv builds the configuration of the Lambda
// entrypoint, which has no config file. Unset variables keep their
// defaults.
func LoadServerConfigFromEnv() (ServerConfig, error) {
	cfg := DefaultServerConfig()

	if v := os.Getenv("TABLE_PREFIX"); v != "" {
		cfg.DynamoDB.TablePrefix = v
	}
	if v := os.Getenv("DYNAMODB_REGION"); v != "" {
		cfg.DynamoDB.Region = v
	}
	if v := os.Getenv("DYNAMODB_ENDPOINT"); v != "" {
		cfg.DynamoDB.Host = v
	}
	if v := os.Getenv("CREATE_TABLE"); v != "" {
		create, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing CREATE_TABLE: %w", err)
		}
		cfg.DynamoDB.CreateTable = create
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		cfg.StoreType = v
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = envLogLevel(lvl)
	}
	cfg.BasePath = strings.TrimSuffix(os.Getenv("BASE_PATH"), "/")
	cfg.LogFormat = "json"

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envLogLevel maps a LOG_LEVEL value onto a log_level key. It accepts the
// Python-style names WARNING and CRITICAL; anything unknown means info.
func envLogLevel(v string) string {
	switch lvl := strings.ToLower(strings.TrimSpace(v)); lvl {
	case "debug", "info", "warn", "error":
		return lvl
	case "warning":
		return "warn"
	case "critical", "fatal":
		return "error"
	default:
		return "info"
	}
}
