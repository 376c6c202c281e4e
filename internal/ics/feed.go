package ics

import (
	ical "github.com/arran4/golang-ical"

	"icalarchive/internal/model"
)

const (
	// ProductID identifies calendars written by this system, both the
	// per-source archive stores and the derived output feeds.
	ProductID = "-//ICalArchive//EN"

	Version = "2.0"
)

// NewCalendar returns an empty wrapper calendar with our product
// identity. name, if non-empty, is set as the display name
// (X-WR-CALNAME).
func NewCalendar(name string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetVersion(Version)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	return cal
}

// SerializeFeed renders events into a derived feed. Each event is emitted
// through its original parsed component, so the output carries the
// upstream serialized form rather than a reconstruction from derived
// fields.
func SerializeFeed(name string, events []model.ArchivedEvent) []byte {
	cal := NewCalendar(name)
	for _, ev := range events {
		cal.AddVEvent(ev.Component)
	}
	return []byte(cal.Serialize())
}
