package model

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// KeySeparator joins a source name and a raw UID into a globally unique
// event key. Source names must not contain it (enforced by config
// validation).
const KeySeparator = "::"

// EventKey identifies an archived event across all sources.
type EventKey struct {
	Source string
	UID    string
}

func (k EventKey) String() string {
	return k.Source + KeySeparator + k.UID
}

// ParseEventKey splits a "source::uid" string back into an EventKey.
// The UID part may itself contain "::".
func ParseEventKey(s string) (EventKey, bool) {
	source, uid, ok := strings.Cut(s, KeySeparator)
	if !ok || source == "" || uid == "" {
		return EventKey{}, false
	}
	return EventKey{Source: source, UID: uid}, true
}

// ParsedEvent is a single VEVENT as produced by the ICS parser, before it
// is merged into the archive. Component is the parsed library object; it
// is carried through to the archive so the event's serialized form is the
// library's round-trip of the original, never a reconstruction from the
// derived fields below.
type ParsedEvent struct {
	UID string

	Summary     string
	Description string
	Categories  []string

	// Start/End are nil when the VEVENT carries no DTSTART/DTEND.
	Start *time.Time
	End   *time.Time

	Component *ical.VEvent
}

// ArchivedEvent is a ParsedEvent after first merge, bound to its source.
// Archived events are write-once: none of these fields ever change after
// insertion, regardless of what upstream later serves for the same UID.
type ArchivedEvent struct {
	Key EventKey

	Summary     string
	Description string
	Categories  []string

	Start *time.Time
	End   *time.Time

	Component *ical.VEvent
}

// HasCategory reports whether the event carries the given category.
func (e *ArchivedEvent) HasCategory(cat string) bool {
	for _, c := range e.Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// HasAnyCategory reports whether the event carries any of the given
// categories. An empty list never matches.
func (e *ArchivedEvent) HasAnyCategory(cats []string) bool {
	for _, c := range cats {
		if e.HasCategory(c) {
			return true
		}
	}
	return false
}

// Archived converts a parsed event into its archived form under source.
func Archived(source string, p ParsedEvent) ArchivedEvent {
	return ArchivedEvent{
		Key:         EventKey{Source: source, UID: p.UID},
		Summary:     p.Summary,
		Description: p.Description,
		Categories:  p.Categories,
		Start:       p.Start,
		End:         p.End,
		Component:   p.Component,
	}
}

// Series is a named grouping of archived events. Members preserves
// insertion order for display; duplicates are rejected by the registry.
type Series struct {
	ID      string
	Name    string
	Color   string
	Members []EventKey
}

// OutputSpec defines one derived feed over the archive. Empty slices and
// patterns mean "no restriction".
type OutputSpec struct {
	IncludeSources        []string
	IncludeCategories     []string
	ExcludeCategories     []string
	IncludeSummaryPattern string
	ExcludeSummaryPattern string
}
