// Package visibility tracks manually hidden events. A manual hide is the
// highest-precedence exclusion: it wins over every rule outcome.
package visibility

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"

	appLog "icalarchive/internal/log"
	"icalarchive/internal/model"
	"icalarchive/internal/store"
)

// Visibility persists the set of manually hidden event keys. All
// mutations serialize on one lock; hide/unhide is a low-frequency
// user-driven operation. Not suitable as-is for a hot concurrent path.
type Visibility struct {
	mu   sync.Mutex
	blob store.Blob
}

type fileFormat struct {
	Hidden []string `json:"hidden"`
}

func New(blob store.Blob) *Visibility {
	return &Visibility{blob: blob}
}

// NewFile persists the hidden set as <dataDir>/hidden.json.
func NewFile(dataDir string) *Visibility {
	return New(store.NewFileBlob(filepath.Join(dataDir, "hidden.json")))
}

// Snapshot returns the current hidden set as one bulk read, for use by
// the composer instead of per-event IsHidden calls. An unreadable or
// malformed record degrades to an empty set.
func (v *Visibility) Snapshot() map[model.EventKey]struct{} {
	return v.load()
}

func (v *Visibility) IsHidden(key model.EventKey) bool {
	_, ok := v.load()[key]
	return ok
}

// Hide marks key as manually hidden. Hiding a key that is already hidden
// is a no-op.
func (v *Visibility) Hide(key model.EventKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	hidden := v.load()
	if _, ok := hidden[key]; ok {
		return nil
	}
	hidden[key] = struct{}{}
	return v.save(hidden)
}

// Unhide removes key from the hidden set.
func (v *Visibility) Unhide(key model.EventKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	hidden := v.load()
	if _, ok := hidden[key]; !ok {
		return nil
	}
	delete(hidden, key)
	return v.save(hidden)
}

func (v *Visibility) load() map[model.EventKey]struct{} {
	out := make(map[model.EventKey]struct{})

	data, err := v.blob.Load()
	if err != nil {
		appLog.Error("hidden set read failed, treating as empty", err)
		return out
	}
	if len(data) == 0 {
		return out
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		appLog.Error("hidden set parse failed, treating as empty", err)
		return out
	}
	for _, s := range ff.Hidden {
		if key, ok := model.ParseEventKey(s); ok {
			out[key] = struct{}{}
		}
	}
	return out
}

func (v *Visibility) save(hidden map[model.EventKey]struct{}) error {
	keys := make([]string, 0, len(hidden))
	for key := range hidden {
		keys = append(keys, key.String())
	}
	sort.Strings(keys)

	data, err := json.MarshalIndent(fileFormat{Hidden: keys}, "", "  ")
	if err != nil {
		return err
	}
	return v.blob.Replace(data)
}
