// Package icstest builds ICS payloads for tests. Feeds are rendered as
// raw calendar text so tests exercise the same parse path as production
// fetches.
package icstest

import (
	"strings"
)

// Event is a minimal VEVENT description. Start/End use the UTC form
// 20060102T150405Z and may be empty.
type Event struct {
	UID         string
	Summary     string
	Description string
	Categories  []string
	Start       string
	End         string
}

// Feed renders events into a VCALENDAR payload.
func Feed(events ...Event) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//icstest//EN\r\n")
	for _, ev := range events {
		b.WriteString("BEGIN:VEVENT\r\n")
		if ev.UID != "" {
			b.WriteString("UID:" + ev.UID + "\r\n")
		}
		if ev.Summary != "" {
			b.WriteString("SUMMARY:" + ev.Summary + "\r\n")
		}
		if ev.Description != "" {
			b.WriteString("DESCRIPTION:" + ev.Description + "\r\n")
		}
		if len(ev.Categories) > 0 {
			b.WriteString("CATEGORIES:" + strings.Join(ev.Categories, ",") + "\r\n")
		}
		if ev.Start != "" {
			b.WriteString("DTSTART:" + ev.Start + "\r\n")
		}
		if ev.End != "" {
			b.WriteString("DTEND:" + ev.End + "\r\n")
		}
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}
