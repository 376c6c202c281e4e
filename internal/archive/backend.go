package archive

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"icalarchive/internal/store"
)

// Backend maps source names onto persisted resources. It exists so the
// archive logic stays independent of the backing medium.
type Backend interface {
	// Store is the append-only archive for a source.
	Store(source string) store.Blob
	// Snapshot holds the latest raw fetched feed for a source.
	Snapshot(source string) store.Blob
	// List names every source that has a store.
	List() ([]string, error)
	// SnapshotTime reports when a source's snapshot was last written.
	SnapshotTime(source string) (time.Time, bool)
}

// FileBackend keeps stores under <dataDir>/store/<source>.ics and
// snapshots under <dataDir>/sources/<source>.ics.
type FileBackend struct {
	storeDir    string
	snapshotDir string
}

func NewFileBackend(dataDir string) *FileBackend {
	return &FileBackend{
		storeDir:    filepath.Join(dataDir, "store"),
		snapshotDir: filepath.Join(dataDir, "sources"),
	}
}

func (b *FileBackend) Store(source string) store.Blob {
	return store.NewFileBlob(filepath.Join(b.storeDir, source+".ics"))
}

func (b *FileBackend) Snapshot(source string) store.Blob {
	return store.NewFileBlob(filepath.Join(b.snapshotDir, source+".ics"))
}

func (b *FileBackend) List() ([]string, error) {
	entries, err := os.ReadDir(b.storeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	sources := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".ics") {
			continue
		}
		sources = append(sources, strings.TrimSuffix(name, ".ics"))
	}
	return sources, nil
}

func (b *FileBackend) SnapshotTime(source string) (time.Time, bool) {
	info, err := os.Stat(filepath.Join(b.snapshotDir, source+".ics"))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime().UTC(), true
}
