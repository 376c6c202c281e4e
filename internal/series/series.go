// Package series implements the named-grouping registry: user-curated or
// rule-populated sets of archived events, with a reverse index lookup.
package series

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	appLog "icalarchive/internal/log"
	"icalarchive/internal/model"
	"icalarchive/internal/store"
)

// Ref names one series containing a given event.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registry persists series as one record mapping id -> {name, color,
// ordered member keys}. Mutations serialize on a single lock; persistence
// failures on mutation are logged, never fatal.
type Registry struct {
	mu   sync.Mutex
	blob store.Blob
}

type record struct {
	Name    string   `json:"name"`
	Color   string   `json:"color,omitempty"`
	Members []string `json:"event_keys"`
}

func New(blob store.Blob) *Registry {
	return &Registry{blob: blob}
}

// NewFile persists the registry as <dataDir>/series.json.
func NewFile(dataDir string) *Registry {
	return New(store.NewFileBlob(filepath.Join(dataDir, "series.json")))
}

// Create derives a slug id from name, probing name, name_1, name_2, ...
// until unused, and registers an empty series under it.
func (r *Registry) Create(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.load()

	base := Slugify(name)
	id := base
	for n := 1; ; n++ {
		if _, taken := all[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}

	all[id] = &record{Name: name, Members: []string{}}
	if err := r.save(all); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes a series. Rules bound to it are the caller's problem:
// the app layer deletes them as part of the same logical operation.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.load()
	if _, ok := all[id]; !ok {
		return false
	}
	delete(all, id)
	r.persist(all)
	return true
}

// AddMember appends key to the series. Idempotent: an already-present key
// is a no-op that still reports success. Returns false only when the
// series does not exist.
func (r *Registry) AddMember(id string, key model.EventKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.load()
	rec, ok := all[id]
	if !ok {
		return false
	}
	ks := key.String()
	for _, m := range rec.Members {
		if m == ks {
			return true
		}
	}
	rec.Members = append(rec.Members, ks)
	r.persist(all)
	return true
}

// RemoveMember removes key from the series. Returns false if the series
// does not exist or the key is not a member.
func (r *Registry) RemoveMember(id string, key model.EventKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.load()
	rec, ok := all[id]
	if !ok {
		return false
	}
	ks := key.String()
	for i, m := range rec.Members {
		if m == ks {
			rec.Members = append(rec.Members[:i], rec.Members[i+1:]...)
			r.persist(all)
			return true
		}
	}
	return false
}

// SetColor updates a series' display color.
func (r *Registry) SetColor(id, color string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.load()
	rec, ok := all[id]
	if !ok {
		return false
	}
	rec.Color = color
	r.persist(all)
	return true
}

// MembersOf is the reverse lookup: every series containing key. A linear
// scan over all series; fine while series counts stay small.
func (r *Registry) MembersOf(key model.EventKey) []Ref {
	all := r.load()
	ks := key.String()

	refs := make([]Ref, 0)
	for _, id := range sortedIDs(all) {
		for _, m := range all[id].Members {
			if m == ks {
				refs = append(refs, Ref{ID: id, Name: all[id].Name})
				break
			}
		}
	}
	return refs
}

// Get returns one series by id.
func (r *Registry) Get(id string) (model.Series, bool) {
	all := r.load()
	rec, ok := all[id]
	if !ok {
		return model.Series{}, false
	}
	return toModel(id, rec), true
}

// List returns every series, ordered by id.
func (r *Registry) List() []model.Series {
	all := r.load()

	out := make([]model.Series, 0, len(all))
	for _, id := range sortedIDs(all) {
		out = append(out, toModel(id, all[id]))
	}
	return out
}

// Exists reports whether a series id is registered; used by rule
// validation.
func (r *Registry) Exists(id string) bool {
	_, ok := r.load()[id]
	return ok
}

func toModel(id string, rec *record) model.Series {
	s := model.Series{ID: id, Name: rec.Name, Color: rec.Color}
	for _, m := range rec.Members {
		if key, ok := model.ParseEventKey(m); ok {
			s.Members = append(s.Members, key)
		}
	}
	return s
}

func sortedIDs(all map[string]*record) []string {
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// load degrades to an empty registry on read or parse failure so a
// corrupt record never blocks reads of the rest of the system.
func (r *Registry) load() map[string]*record {
	out := make(map[string]*record)

	data, err := r.blob.Load()
	if err != nil {
		appLog.Error("series registry read failed, treating as empty", err)
		return out
	}
	if len(data) == 0 {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		appLog.Error("series registry parse failed, treating as empty", err)
		return map[string]*record{}
	}
	for _, rec := range out {
		if rec.Members == nil {
			rec.Members = []string{}
		}
	}
	return out
}

func (r *Registry) save(all map[string]*record) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	return r.blob.Replace(data)
}

// persist saves and logs failure; the in-memory mutation result is
// already decided by then.
func (r *Registry) persist(all map[string]*record) {
	if err := r.save(all); err != nil {
		appLog.Error("series registry save failed", err)
	}
}
