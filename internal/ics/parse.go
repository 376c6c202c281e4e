package ics

import (
	"bytes"
	"errors"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "icalarchive/internal/log"
	"icalarchive/internal/model"
)

// Parse parses an ICS payload into ParsedEvents, in calendar order.
//
// VEVENTs without a UID are skipped (logged), as are components the
// library cannot parse; one broken event never fails the whole feed.
// name is a label for logging only (source name or store file).
func Parse(name string, body []byte) ([]model.ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]model.ParsedEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "name", name)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "name", name, "event_count", len(events))
	return events, nil
}

// EventMap keys parsed events by raw UID. If a feed repeats a UID the
// last occurrence wins, matching how the archive treats a feed as a set.
func EventMap(events []model.ParsedEvent) map[string]model.ParsedEvent {
	m := make(map[string]model.ParsedEvent, len(events))
	for _, ev := range events {
		m[ev.UID] = ev
	}
	return m
}

func parseVEvent(ve *ical.VEvent) (model.ParsedEvent, error) {
	var out model.ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	// CATEGORIES may appear multiple times, each with a comma-separated
	// value list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out.Categories = append(out.Categories, part)
			}
		}
	}

	// DTSTART/DTEND via the library's timezone-aware helpers, falling
	// back to the all-day variants for VALUE=DATE events. Events without
	// a DTSTART keep a nil Start; overlap evaluation skips them.
	if ve.GetProperty(ical.ComponentPropertyDtStart) != nil {
		if t, err := ve.GetStartAt(); err == nil {
			out.Start = &t
		} else if t, err := ve.GetAllDayStartAt(); err == nil {
			out.Start = &t
		}
	}
	if ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
		if t, err := ve.GetEndAt(); err == nil {
			out.End = &t
		} else if t, err := ve.GetAllDayEndAt(); err == nil {
			out.End = &t
		}
	}

	out.Component = ve
	return out, nil
}
