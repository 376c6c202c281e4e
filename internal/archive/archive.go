// Package archive implements the per-source append-only event archive.
//
// Each source persists as one ICS calendar file. Events are write-once:
// a key, once archived, is never rewritten or removed, even when the
// upstream feed edits or drops it. Merges rewrite the whole store file
// through an atomic replace so concurrent readers always observe a
// complete calendar.
package archive

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"icalarchive/internal/ics"
	appLog "icalarchive/internal/log"
	"icalarchive/internal/model"
)

// Archive merges fetched events into per-source stores and serves
// snapshot reads of them. Merges on the same source serialize on a
// per-source lock; merges on different sources never block each other,
// and reads take no lock at all.
type Archive struct {
	backend Backend

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(backend Backend) *Archive {
	return &Archive{
		backend: backend,
		locks:   make(map[string]*sync.Mutex),
	}
}

// NewFileArchive returns an Archive over store/ and sources/ directories
// under dataDir.
func NewFileArchive(dataDir string) *Archive {
	return New(NewFileBackend(dataDir))
}

func (a *Archive) sourceLock(source string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[source]
	if !ok {
		l = &sync.Mutex{}
		a.locks[source] = l
	}
	return l
}

// Merge inserts events from fresh whose UIDs are not yet archived for
// source and returns the number inserted. Already-archived keys are left
// untouched regardless of what fresh carries for them. New events are
// appended in UID order so repeated merges produce identical store files.
//
// An unreadable existing store fails the merge rather than clobbering it.
func (a *Archive) Merge(source string, fresh map[string]model.ParsedEvent) (int, error) {
	lock := a.sourceLock(source)
	lock.Lock()
	defer lock.Unlock()

	blob := a.backend.Store(source)
	data, err := blob.Load()
	if err != nil {
		return 0, fmt.Errorf("load store for %q: %w", source, err)
	}

	var cal *ical.Calendar
	existing := make(map[string]struct{})
	if len(data) > 0 {
		cal, err = ical.ParseCalendar(bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("parse store for %q: %w", source, err)
		}
		for _, ve := range cal.Events() {
			if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
				existing[p.Value] = struct{}{}
			}
		}
	} else {
		cal = ics.NewCalendar("")
	}

	newUIDs := make([]string, 0)
	for uid := range fresh {
		if _, ok := existing[uid]; ok {
			appLog.Debug("merge skipping archived key", "source", source, "uid", uid)
			continue
		}
		newUIDs = append(newUIDs, uid)
	}
	if len(newUIDs) == 0 {
		return 0, nil
	}
	sort.Strings(newUIDs)

	for _, uid := range newUIDs {
		cal.AddVEvent(fresh[uid].Component)
	}

	if err := blob.Replace([]byte(cal.Serialize())); err != nil {
		return 0, fmt.Errorf("replace store for %q: %w", source, err)
	}
	return len(newUIDs), nil
}

// LoadSource reads one source's archived events. Read or parse failures
// degrade to an empty result (logged) so one broken store never takes
// down reads of the others.
func (a *Archive) LoadSource(source string) map[model.EventKey]model.ArchivedEvent {
	out := make(map[model.EventKey]model.ArchivedEvent)

	data, err := a.backend.Store(source).Load()
	if err != nil {
		appLog.Error("store read failed, treating as empty", err, "source", source)
		return out
	}
	if len(data) == 0 {
		return out
	}

	events, err := ics.Parse(source, data)
	if err != nil {
		appLog.Error("store parse failed, treating as empty", err, "source", source)
		return out
	}
	for _, ev := range events {
		archived := model.Archived(source, ev)
		out[archived.Key] = archived
	}
	return out
}

// LoadAll unions the archived events of every source with a store.
func (a *Archive) LoadAll() map[model.EventKey]model.ArchivedEvent {
	out := make(map[model.EventKey]model.ArchivedEvent)

	sources, err := a.backend.List()
	if err != nil {
		appLog.Error("store listing failed", err)
		return out
	}
	for _, source := range sources {
		for key, ev := range a.LoadSource(source) {
			out[key] = ev
		}
	}
	return out
}

// SaveSnapshot records the latest raw fetched feed for a source. The
// snapshot is informational (stats, debugging); the archive itself only
// grows through Merge.
func (a *Archive) SaveSnapshot(source string, body []byte) error {
	return a.backend.Snapshot(source).Replace(body)
}

// Stats summarizes one source's archive state.
type Stats struct {
	EventCount int
	LastFetch  *time.Time
}

func (a *Archive) SourceStats(source string) Stats {
	st := Stats{EventCount: len(a.LoadSource(source))}
	if t, ok := a.backend.SnapshotTime(source); ok {
		st.LastFetch = &t
	}
	return st
}
