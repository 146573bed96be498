package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vaibhav2408/config-manager/internal/config"
	"github.com/vaibhav2408/config-manager/internal/notify"
)

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultServerConfig()
	cfg.LogFormat = "json"

	newLogger(&buf, cfg).Info("hello", "service_id", "svcA")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["service_id"] != "svcA" {
		t.Errorf("unexpected log entry: %v", entry)
	}

	buf.Reset()
	cfg.LogFormat = "text"
	newLogger(&buf, cfg).Info("hello", "service_id", "svcA")
	if !strings.Contains(buf.String(), "service_id=svcA") {
		t.Errorf("expected text log line, got %q", buf.String())
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultServerConfig()
	cfg.LogLevel = "warn"

	logger := newLogger(&buf, cfg)
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn line, got %q", buf.String())
	}
}

func TestBuildNotifiers_None(t *testing.T) {
	cfg := config.DefaultServerConfig()
	notifiers, err := buildNotifiers(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifiers) != 0 {
		t.Errorf("expected no notifiers, got %d", len(notifiers))
	}
}

func TestBuildNotifiers_FileExporter(t *testing.T) {
	cfg := config.DefaultServerConfig()
	cfg.Detector.ExportDir = filepath.Join(t.TempDir(), "exports")

	notifiers, err := buildNotifiers(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifiers) != 1 {
		t.Fatalf("expected 1 notifier, got %d", len(notifiers))
	}
	if _, ok := notifiers[0].(*notify.FileExporter); !ok {
		t.Errorf("expected *notify.FileExporter, got %T", notifiers[0])
	}
}

func TestLogDetectorExit(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"shutdown", context.Canceled, false},
		{"wrapped shutdown", fmt.Errorf("run: %w", context.Canceled), false},
		{"clean exit", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"other", errors.New("poller broke"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			logDetectorExit(logger, tt.err)

			logged := strings.Contains(buf.String(), "level=ERROR")
			if logged != tt.wantErr {
				t.Errorf("error logged = %v, want %v (output %q)", logged, tt.wantErr, buf.String())
			}
		})
	}
}
