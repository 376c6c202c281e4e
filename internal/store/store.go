package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Blob is one persisted resource (an event store, the hidden set, the
// series registry). The interface keeps Archive/Visibility/Series logic
// independent of the backing medium.
type Blob interface {
	// Load returns the full current content. A resource that has never
	// been written loads as (nil, nil).
	Load() ([]byte, error)
	// Replace atomically swaps the full content. Readers concurrent with
	// Replace observe either the old content or the new, never a mix.
	Replace(data []byte) error
}

// FileBlob persists a resource as a single file, replaced via a temp file
// and rename in the same directory.
type FileBlob struct {
	path string
}

func NewFileBlob(path string) *FileBlob {
	return &FileBlob{path: path}
}

func (b *FileBlob) Path() string {
	return b.path
}

func (b *FileBlob) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (b *FileBlob) Replace(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".icalarchive-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, b.path)
}
