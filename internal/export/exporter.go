package export

import (
	"context"
	"fmt"
	"listing-tracker/internal/config"
	"os"
	"path/filepath"
)

// Exporter stores a named report and returns where it was written
type Exporter interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// New builds the exporter selected by the export driver
func New(ctx context.Context, cfg config.ExportConfig) (Exporter, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileExporter(cfg.Dir), nil
	case "s3":
		e, err := NewS3Exporter(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unsupported export driver: %s", cfg.Driver)
	}
}

// FileExporter writes reports into a local directory
type FileExporter struct {
	dir string
}

// NewFileExporter creates a FileExporter rooted at dir
func NewFileExporter(dir string) *FileExporter {
	if dir == "" {
		dir = "."
	}
	return &FileExporter{dir: dir}
}

// Put writes the report through a temporary file so readers never see a
// partially written report
func (e *FileExporter) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(e.dir, filepath.Base(name))
	tmp, err := os.CreateTemp(e.dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return path, nil
}
