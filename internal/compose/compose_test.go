package compose_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalarchive/internal/compose"
	"icalarchive/internal/model"
	"icalarchive/internal/rules"
)

func ts(hour, minute int) *time.Time {
	t := time.Date(2025, 3, 1, hour, minute, 0, 0, time.UTC)
	return &t
}

func event(source, uid, summary string, start *time.Time, categories ...string) model.ArchivedEvent {
	return model.ArchivedEvent{
		Key:        model.EventKey{Source: source, UID: uid},
		Summary:    summary,
		Categories: categories,
		Start:      start,
	}
}

func eventSet(events ...model.ArchivedEvent) map[model.EventKey]model.ArchivedEvent {
	m := make(map[model.EventKey]model.ArchivedEvent, len(events))
	for _, ev := range events {
		m[ev.Key] = ev
	}
	return m
}

func keys(events []model.ArchivedEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Key.String())
	}
	return out
}

func TestComposeUnrestrictedShowsEverything(t *testing.T) {
	set := eventSet(
		event("work", "u1", "Standup", ts(9, 0)),
		event("home", "u2", "Dentist", ts(10, 0)),
	)

	out := compose.Compose(model.OutputSpec{}, nil, nil, set)
	assert.Equal(t, []string{"work::u1", "home::u2"}, keys(out))
}

func TestManualHideWinsOverEverything(t *testing.T) {
	set := eventSet(event("work", "u1", "Standup", ts(9, 0)))
	hidden := map[model.EventKey]struct{}{
		{Source: "work", UID: "u1"}: {},
	}

	// Even a spec that explicitly selects the event cannot resurrect it.
	spec := model.OutputSpec{IncludeSummaryPattern: "Standup"}
	out := compose.Compose(spec, hidden, nil, set)
	assert.Empty(t, out)
}

func TestRuleHiddenEventsAreDropped(t *testing.T) {
	set := eventSet(
		event("work", "a", "Team Sync", ts(9, 0)),
		event("work", "b", "Room Hold", ts(9, 30)),
	)
	set[model.EventKey{Source: "work", UID: "a"}] = withEnd(set[model.EventKey{Source: "work", UID: "a"}], ts(10, 0))
	set[model.EventKey{Source: "work", UID: "b"}] = withEnd(set[model.EventKey{Source: "work", UID: "b"}], ts(10, 30))

	rs := []rules.Rule{
		rules.OverlapConflict{ID: "r1", Pattern1: "Sync", Pattern2: "Hold", HidePattern: 2},
	}

	out := compose.Compose(model.OutputSpec{}, nil, rs, set)
	assert.Equal(t, []string{"work::a"}, keys(out))
}

func withEnd(ev model.ArchivedEvent, end *time.Time) model.ArchivedEvent {
	ev.End = end
	return ev
}

func TestIncludeSourcesAllowList(t *testing.T) {
	set := eventSet(
		event("work", "u1", "Standup", ts(9, 0)),
		event("home", "u2", "Dentist", ts(10, 0)),
	)

	out := compose.Compose(model.OutputSpec{IncludeSources: []string{"work"}}, nil, nil, set)
	assert.Equal(t, []string{"work::u1"}, keys(out))
}

func TestCategoryFilters(t *testing.T) {
	set := eventSet(
		event("work", "u1", "Planning", ts(9, 0), "work"),
		event("work", "u2", "Dentist", ts(10, 0), "personal"),
		event("work", "u3", "Cancelled Sync", ts(11, 0), "work", "cancelled"),
	)

	// include work: personal event drops out.
	out := compose.Compose(model.OutputSpec{IncludeCategories: []string{"work"}}, nil, nil, set)
	assert.Equal(t, []string{"work::u1", "work::u3"}, keys(out))

	// exclude cancelled beats the work tag it also carries.
	out = compose.Compose(model.OutputSpec{
		IncludeCategories: []string{"work"},
		ExcludeCategories: []string{"cancelled"},
	}, nil, nil, set)
	assert.Equal(t, []string{"work::u1"}, keys(out))
}

func TestSummaryPatternFilters(t *testing.T) {
	set := eventSet(
		event("work", "u1", "Team Sync", ts(9, 0)),
		event("work", "u2", "Team Lunch", ts(10, 0)),
	)

	out := compose.Compose(model.OutputSpec{IncludeSummaryPattern: "sync"}, nil, nil, set)
	assert.Equal(t, []string{"work::u1"}, keys(out))

	out = compose.Compose(model.OutputSpec{ExcludeSummaryPattern: "sync"}, nil, nil, set)
	assert.Equal(t, []string{"work::u2"}, keys(out))
}

func TestOrderingIsDeterministic(t *testing.T) {
	noStart := event("work", "z", "No Start", nil)
	set := eventSet(
		event("work", "b", "Later", ts(12, 0)),
		event("work", "a", "Tied", ts(9, 0)),
		event("aaa", "x", "Tied Too", ts(9, 0)),
		noStart,
	)

	out := compose.Compose(model.OutputSpec{}, nil, nil, set)
	// nil starts first, then start time, key breaking ties.
	assert.Equal(t, []string{"work::z", "aaa::x", "work::a", "work::b"}, keys(out))
}

// Golden: the composed listing for a fixed archive, rule set and hidden
// set. Regenerate with: go test ./internal/compose -update
func TestComposeGolden(t *testing.T) {
	set := eventSet(
		event("work", "sync-1", "Team Sync", ts(9, 0), "work"),
		event("work", "hold-1", "Room Hold", ts(9, 30), "facilities"),
		event("work", "retro-1", "Sprint Retro", ts(13, 0), "work"),
		event("home", "dentist-1", "Dentist", ts(15, 0), "personal"),
	)
	set[model.EventKey{Source: "work", UID: "sync-1"}] = withEnd(set[model.EventKey{Source: "work", UID: "sync-1"}], ts(10, 0))
	set[model.EventKey{Source: "work", UID: "hold-1"}] = withEnd(set[model.EventKey{Source: "work", UID: "hold-1"}], ts(10, 30))

	hidden := map[model.EventKey]struct{}{
		{Source: "home", UID: "dentist-1"}: {},
	}
	rs := []rules.Rule{
		rules.OverlapConflict{ID: "r1", Pattern1: "Sync", Pattern2: "Hold", HidePattern: 2},
	}

	out := compose.Compose(model.OutputSpec{}, hidden, rs, set)

	type row struct {
		Key     string     `json:"key"`
		Summary string     `json:"summary"`
		Start   *time.Time `json:"start,omitempty"`
		End     *time.Time `json:"end,omitempty"`
	}
	listing := make([]row, 0, len(out))
	for _, ev := range out {
		listing = append(listing, row{Key: ev.Key.String(), Summary: ev.Summary, Start: ev.Start, End: ev.End})
	}

	data, err := json.MarshalIndent(listing, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "compose_listing", append(data, '\n'))
}
