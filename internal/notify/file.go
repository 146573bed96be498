package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vaibhav2408/config-manager/internal/detector"
)

// FileExporter writes the current config snapshot of a changed service to
// <dir>/<service_id>.json. Readers never observe a partially written file.
type FileExporter struct {
	dir    string
	logger *slog.Logger
}

// NewFileExporter creates dir if needed and returns an exporter writing
// into it.
func NewFileExporter(dir string, logger *slog.Logger) (*FileExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir %s: %w", dir, err)
	}
	return &FileExporter{dir: dir, logger: logger}, nil
}

func (e *FileExporter) Notify(_ context.Context, ch detector.Change) error {
	if ch.ServiceID == "" || filepath.Base(ch.ServiceID) != ch.ServiceID {
		return fmt.Errorf("service id %q is not a valid file name", ch.ServiceID)
	}

	data, err := json.MarshalIndent(ch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling change of %s: %w", ch.ServiceID, err)
	}

	path := filepath.Join(e.dir, ch.ServiceID+".json")

	// Write to a temp file in the same dir, then atomic rename.
	f, err := os.CreateTemp(e.dir, ch.ServiceID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming to %s: %w", path, err)
	}

	e.logger.Info("exported config snapshot", "path", path, "configs", len(ch.Configs))
	return nil
}
