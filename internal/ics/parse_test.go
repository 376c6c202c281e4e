package ics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalarchive/internal/ics"
	"icalarchive/internal/icstest"
	"icalarchive/internal/model"
)

func TestParseFeed(t *testing.T) {
	body := icstest.Feed(
		icstest.Event{
			UID:         "u1",
			Summary:     "Team Sync",
			Description: "weekly",
			Categories:  []string{"work", "meetings"},
			Start:       "20250301T090000Z",
			End:         "20250301T100000Z",
		},
		icstest.Event{UID: "u2", Summary: "No Times"},
	)

	events, err := ics.Parse("test", body)
	require.NoError(t, err)
	require.Len(t, events, 2)

	ev := events[0]
	assert.Equal(t, "u1", ev.UID)
	assert.Equal(t, "Team Sync", ev.Summary)
	assert.Equal(t, "weekly", ev.Description)
	assert.Equal(t, []string{"work", "meetings"}, ev.Categories)
	require.NotNil(t, ev.Start)
	require.NotNil(t, ev.End)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), ev.Start.UTC())
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), ev.End.UTC())
	require.NotNil(t, ev.Component)

	assert.Nil(t, events[1].Start)
	assert.Nil(t, events[1].End)
}

func TestParseSkipsEventsWithoutUID(t *testing.T) {
	body := icstest.Feed(
		icstest.Event{Summary: "anonymous"},
		icstest.Event{UID: "u1", Summary: "named"},
	)

	events, err := ics.Parse("test", body)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UID)
}

func TestParseRejectsEmptyAndMalformedBodies(t *testing.T) {
	_, err := ics.Parse("test", nil)
	assert.Error(t, err)

	_, err = ics.Parse("test", []byte("not a calendar"))
	assert.Error(t, err)
}

func TestEventMapLastOccurrenceWins(t *testing.T) {
	body := icstest.Feed(
		icstest.Event{UID: "u1", Summary: "first"},
		icstest.Event{UID: "u1", Summary: "second"},
	)

	events, err := ics.Parse("test", body)
	require.NoError(t, err)

	m := ics.EventMap(events)
	require.Len(t, m, 1)
	assert.Equal(t, "second", m["u1"].Summary)
}

func TestSerializeFeedCarriesOriginalComponents(t *testing.T) {
	body := icstest.Feed(
		icstest.Event{UID: "u1", Summary: "Keep Me", Start: "20250301T090000Z"},
	)
	events, err := ics.Parse("src", body)
	require.NoError(t, err)

	archived := make([]model.ArchivedEvent, 0, len(events))
	for _, ev := range events {
		archived = append(archived, model.Archived("src", ev))
	}

	out := string(ics.SerializeFeed("demo", archived))
	assert.Contains(t, out, "PRODID:"+ics.ProductID)
	assert.Contains(t, out, "X-WR-CALNAME:demo")
	assert.Contains(t, out, "UID:u1")
	assert.Contains(t, out, "SUMMARY:Keep Me")
	// Round-trip: re-parse the feed and find the same event.
	reparsed, err := ics.Parse("out", []byte(out))
	require.NoError(t, err)
	require.Len(t, reparsed, 1)
	assert.Equal(t, "Keep Me", reparsed[0].Summary)
	assert.True(t, strings.Contains(out, "DTSTART:20250301T090000Z"))
}
