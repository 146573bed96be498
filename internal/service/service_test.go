package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/vaibhav2408/config-manager/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingStore captures the queries the service builds.
type recordingStore struct {
	store.Store
	queries []store.Query
	added   map[string]any
	updated map[string]any
}

func (r *recordingStore) AddConfig(_ context.Context, serviceID, configName string, cfg map[string]any) (bool, error) {
	r.queries = append(r.queries, store.Query{ServiceID: serviceID, ConfigName: configName})
	r.added = cfg
	return true, nil
}

func (r *recordingStore) GetConfigs(_ context.Context, q store.Query) ([]store.Record, error) {
	r.queries = append(r.queries, q)
	return []store.Record{}, nil
}

func (r *recordingStore) UpdateConfig(_ context.Context, q store.Query, cfg map[string]any) (bool, error) {
	r.queries = append(r.queries, q)
	r.updated = cfg
	return true, nil
}

func TestConfigService_KeyAssembly(t *testing.T) {
	rs := &recordingStore{}
	svc := New(rs, testLogger())
	ctx := context.Background()

	if _, err := svc.AddServiceConfig(ctx, "svcA", "emails", Payload{}); err != nil {
		t.Fatalf("AddServiceConfig: %v", err)
	}
	if _, err := svc.GetAllServiceConfig(ctx, "svcA"); err != nil {
		t.Fatalf("GetAllServiceConfig: %v", err)
	}
	if _, err := svc.GetServiceConfigByName(ctx, "svcA", "emails"); err != nil {
		t.Fatalf("GetServiceConfigByName: %v", err)
	}
	if _, err := svc.UpdateServiceConfig(ctx, "svcA", "emails", nil); err != nil {
		t.Fatalf("UpdateServiceConfig: %v", err)
	}

	want := []store.Query{
		{ServiceID: "svcA", ConfigName: "emails"},
		{ServiceID: "svcA"},
		{ServiceID: "svcA", ConfigName: "emails"},
		{ServiceID: "svcA", ConfigName: "emails"},
	}
	if len(rs.queries) != len(want) {
		t.Fatalf("expected %d store calls, got %d", len(want), len(rs.queries))
	}
	for i := range want {
		if rs.queries[i] != want[i] {
			t.Errorf("call %d: got %+v, want %+v", i, rs.queries[i], want[i])
		}
	}

	if rs.added == nil || len(rs.added) != 0 {
		t.Errorf("expected empty payload defaulted to {}, got %#v", rs.added)
	}
	if rs.updated == nil {
		t.Error("expected nil update payload defaulted to {}")
	}
}

func TestConfigService_Scenario(t *testing.T) {
	svc := New(store.NewMemoryStore(testLogger()), testLogger())
	ctx := context.Background()

	ok, err := svc.AddServiceConfig(ctx, "svcA", "emails", Payload{Config: map[string]any{}})
	if err != nil || !ok {
		t.Fatalf("AddServiceConfig: ok=%v err=%v", ok, err)
	}

	got, err := svc.GetServiceConfigByName(ctx, "svcA", "emails")
	if err != nil {
		t.Fatalf("GetServiceConfigByName: %v", err)
	}
	if len(got) != 1 || got[0].ConfigName != "emails" || len(got[0].Config) != 0 {
		t.Errorf("unexpected records: %+v", got)
	}

	ok, err = svc.UpdateServiceConfig(ctx, "svcA", "emails", map[string]any{"from": "ops@example.com"})
	if err != nil || !ok {
		t.Fatalf("UpdateServiceConfig: ok=%v err=%v", ok, err)
	}

	all, err := svc.GetAllServiceConfig(ctx, "svcA")
	if err != nil {
		t.Fatalf("GetAllServiceConfig: %v", err)
	}
	if len(all) != 1 || all[0].Config["from"] != "ops@example.com" {
		t.Errorf("unexpected records after update: %+v", all)
	}
}

func TestConfigService_UpdateMissing(t *testing.T) {
	svc := New(store.NewMemoryStore(testLogger()), testLogger())

	ok, err := svc.UpdateServiceConfig(context.Background(), "svcA", "nope", map[string]any{})
	if ok {
		t.Error("expected update to fail")
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConfigService_Delete(t *testing.T) {
	svc := New(store.NewMemoryStore(testLogger()), testLogger())

	_, err := svc.DeleteServiceConfig(context.Background(), "svcA", "emails")
	if !errors.Is(err, store.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}
