package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileBackend keeps every collection as <dir>/<collection>.json.
type FileBackend struct {
	dir string
	now func() time.Time
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	return &FileBackend{dir: dir, now: time.Now}, nil
}

func (b *FileBackend) path(collection string) string {
	return filepath.Join(b.dir, collection+".json")
}

func (b *FileBackend) Load(_ context.Context, collection string) ([]byte, error) {
	data, err := os.ReadFile(b.path(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Save writes a staging file next to the target and renames it over the
// previous version.
func (b *FileBackend) Save(_ context.Context, collection string, data []byte) error {
	tmp, err := os.CreateTemp(b.dir, collection+".*.tmp")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write staging file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(tmpName, b.path(collection)); err != nil {
		return fmt.Errorf("publish %s: %w", collection, err)
	}
	return nil
}

// Quarantine renames the current file to <collection>.json.corrupt-<timestamp>.
func (b *FileBackend) Quarantine(_ context.Context, collection string) error {
	side := fmt.Sprintf("%s.corrupt-%s", b.path(collection), b.now().UTC().Format("20060102T150405.000000000"))
	err := os.Rename(b.path(collection), side)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Version is the modification time and size of the collection file. Every
// Save renames a fresh file into place, so both a local and a foreign save
// move it.
func (b *FileBackend) Version(_ context.Context, collection string) (string, error) {
	info, err := os.Stat(b.path(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()), nil
}
