package service

import (
	"context"
	"log/slog"

	"github.com/vaibhav2408/config-manager/internal/store"
)

// Payload is the request body of the add and update endpoints.
type Payload struct {
	Config map[string]any `json:"config"`
}

// ConfigService assembles store keys for the HTTP layer and the change
// detector. It holds no state of its own.
type ConfigService struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a ConfigService backed by s.
func New(s store.Store, logger *slog.Logger) *ConfigService {
	return &ConfigService{store: s, logger: logger}
}

// AddServiceConfig stores p under (serviceID, configName), replacing any
// existing record.
func (c *ConfigService) AddServiceConfig(ctx context.Context, serviceID, configName string, p Payload) (bool, error) {
	cfg := p.Config
	if cfg == nil {
		cfg = map[string]any{}
	}

	ok, err := c.store.AddConfig(ctx, serviceID, configName, cfg)
	if err != nil || !ok {
		c.logger.Info("failed to add the config",
			"service_id", serviceID, "config_name", configName, "status", ok, "error", err)
		return ok, err
	}

	c.logger.Info("added the config", "service_id", serviceID, "config_name", configName)
	return true, nil
}

// GetAllServiceConfig returns every config of serviceID.
func (c *ConfigService) GetAllServiceConfig(ctx context.Context, serviceID string) ([]store.Record, error) {
	return c.store.GetConfigs(ctx, store.Query{ServiceID: serviceID})
}

// GetServiceConfigByName returns the named config of serviceID as a slice
// of at most one record.
func (c *ConfigService) GetServiceConfigByName(ctx context.Context, serviceID, configName string) ([]store.Record, error) {
	return c.store.GetConfigs(ctx, store.Query{ServiceID: serviceID, ConfigName: configName})
}

// UpdateServiceConfig replaces the payload of an existing config.
func (c *ConfigService) UpdateServiceConfig(ctx context.Context, serviceID, configName string, cfg map[string]any) (bool, error) {
	if cfg == nil {
		cfg = map[string]any{}
	}

	ok, err := c.store.UpdateConfig(ctx, store.Query{ServiceID: serviceID, ConfigName: configName}, cfg)
	if err != nil || !ok {
		c.logger.Info("failed to update the config",
			"service_id", serviceID, "config_name", configName, "status", ok, "error", err)
		return ok, err
	}

	c.logger.Info("updated the config", "service_id", serviceID, "config_name", configName)
	return true, nil
}

// DeleteServiceConfig forwards to the store, which does not support
// deletion; callers get store.ErrNotSupported.
func (c *ConfigService) DeleteServiceConfig(ctx context.Context, serviceID, configName string) (bool, error) {
	return c.store.DeleteConfig(ctx, store.Query{ServiceID: serviceID, ConfigName: configName})
}
