package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. It mirrors DynamoStore
// semantics (upsert on add, configs of a service ordered by name) and is
// meant for local development and tests.
type MemoryStore struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	records map[string]map[string]memoryRecord
}

// memoryRecord keeps the payload encoded so callers never share maps with
// the store.
type memoryRecord struct {
	config    string
	createdAt int64
	updatedAt int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		logger:  logger,
		now:     time.Now,
		records: make(map[string]map[string]memoryRecord),
	}
}

func (m *MemoryStore) AddConfig(_ context.Context, serviceID, configName string, cfg map[string]any) (bool, error) {
	encoded, err := encodeConfig(cfg)
	if err != nil {
		return false, &Error{Kind: KindInvalid, Op: "add", Err: err}
	}

	ts := m.now().Unix()

	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.records[serviceID]
	if !ok {
		svc = make(map[string]memoryRecord)
		m.records[serviceID] = svc
	}
	svc[configName] = memoryRecord{config: encoded, createdAt: ts, updatedAt: ts}

	m.logger.Debug("stored config in memory", "service_id", serviceID, "config_name", configName)
	return true, nil
}

func (m *MemoryStore) GetConfigs(_ context.Context, q Query) ([]Record, error) {
	if q.ServiceID == "" {
		m.logger.Error("mandatory query field is missing", "field", attrServiceID, "config_name", q.ConfigName)
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	svc := m.records[q.ServiceID]
	if q.ConfigName != "" {
		mr, ok := svc[q.ConfigName]
		if !ok {
			return []Record{}, nil
		}
		rec, err := mr.record(q.ServiceID, q.ConfigName)
		if err != nil {
			return nil, &Error{Kind: KindBackend, Op: "get " + q.String(), Err: err}
		}
		return []Record{rec}, nil
	}

	names := make([]string, 0, len(svc))
	for name := range svc {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		rec, err := svc[name].record(q.ServiceID, name)
		if err != nil {
			return nil, &Error{Kind: KindBackend, Op: "get " + q.String(), Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (m *MemoryStore) UpdateConfig(_ context.Context, q Query, cfg map[string]any) (bool, error) {
	if q.ServiceID == "" || q.ConfigName == "" {
		return false, &Error{Kind: KindInvalid, Op: "update " + q.String()}
	}
	encoded, err := encodeConfig(cfg)
	if err != nil {
		return false, &Error{Kind: KindInvalid, Op: "update " + q.String(), Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mr, ok := m.records[q.ServiceID][q.ConfigName]
	if !ok {
		return false, &Error{Kind: KindNotFound, Op: "update " + q.String()}
	}
	mr.config = encoded
	mr.updatedAt = nextUpdatedAt(m.now().Unix(), mr.updatedAt)
	m.records[q.ServiceID][q.ConfigName] = mr

	m.logger.Debug("updated config in memory", "service_id", q.ServiceID, "config_name", q.ConfigName)
	return true, nil
}

// DeleteConfig is not supported.
func (m *MemoryStore) DeleteConfig(_ context.Context, q Query) (bool, error) {
	return false, &Error{Kind: KindNotSupported, Op: "delete " + q.String()}
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

func (mr memoryRecord) record(serviceID, configName string) (Record, error) {
	cfg, err := decodeConfig(mr.config)
	if err != nil {
		return Record{}, err
	}
	return Record{
		UpdatedAt:  mr.updatedAt,
		ServiceID:  serviceID,
		CreatedAt:  mr.createdAt,
		ConfigName: configName,
		Config:     cfg,
	}, nil
}
