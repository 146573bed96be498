package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the interface for the configuration table. Every operation takes
// the request context, which also carries any tracing or caller metadata.
type Store interface {
	// AddConfig inserts or overwrites the record for (serviceID, configName),
	// stamping created_at and updated_at with the current time. It reports
	// true only when the backend acknowledged the write.
	AddConfig(ctx context.Context, serviceID, configName string, cfg map[string]any) (bool, error)

	// GetConfigs returns the record matching q, wrapped in a one-element
	// slice, when q names a config; otherwise every record of q.ServiceID.
	// Missing records yield an empty result, never an error. A query without
	// a service ID returns nil.
	GetConfigs(ctx context.Context, q Query) ([]Record, error)

	// UpdateConfig replaces the config payload of an existing record and
	// bumps its updated_at. Updating a missing record returns ErrNotFound.
	UpdateConfig(ctx context.Context, q Query, cfg map[string]any) (bool, error)

	// DeleteConfig is not supported and always returns ErrNotSupported.
	DeleteConfig(ctx context.Context, q Query) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}

// Record is a single stored configuration entry.
type Record struct {
	UpdatedAt  int64          `json:"updated_at"`
	ServiceID  string         `json:"service_id"`
	CreatedAt  int64          `json:"created_at"`
	ConfigName string         `json:"config_name"`
	Config     map[string]any `json:"config"`
}

// Query selects records by key. ServiceID is mandatory; an empty
// ConfigName selects every config of the service.
type Query struct {
	ServiceID  string
	ConfigName string
}

func (q Query) String() string {
	if q.ConfigName == "" {
		return q.ServiceID
	}
	return q.ServiceID + "/" + q.ConfigName
}

// encodeConfig serializes a config payload. A nil payload is stored as {}.
func encodeConfig(cfg map[string]any) (string, error) {
	if cfg == nil {
		return "{}", nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return string(data), nil
}

func decodeConfig(raw string) (map[string]any, error) {
	cfg := map[string]any{}
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	return cfg, nil
}

// nextUpdatedAt returns the updated_at for an update happening at now over a
// record last written at prev. It is always strictly greater than prev.
// AddConfig does not use it: an upsert stamps now as is.
func nextUpdatedAt(now, prev int64) int64 {
	if now <= prev {
		return prev + 1
	}
	return now
}
