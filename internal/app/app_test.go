package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalarchive/internal/app"
	"icalarchive/internal/config"
	"icalarchive/internal/fetch"
	"icalarchive/internal/ics"
	"icalarchive/internal/icstest"
	"icalarchive/internal/model"
	"icalarchive/internal/rules"
)

// stubFetcher serves canned feed bodies per source.
type stubFetcher struct {
	feeds map[string][]byte
	errs  map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, source, _ string) (fetch.Result, error) {
	if err := f.errs[source]; err != nil {
		return fetch.Result{}, err
	}
	body, ok := f.feeds[source]
	if !ok {
		return fetch.Result{}, errors.New("no canned feed")
	}
	events, err := ics.Parse(source, body)
	if err != nil {
		return fetch.Result{}, err
	}
	return fetch.Result{Body: body, Events: ics.EventMap(events)}, nil
}

func newTestApp(t *testing.T) (*app.App, *stubFetcher) {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	require.NoError(t, config.Save(cfgPath, cfg))

	a, err := app.New(cfgPath)
	require.NoError(t, err)

	f := &stubFetcher{feeds: map[string][]byte{}, errs: map[string]error{}}
	a.Fetcher = f
	return a, f
}

func addSource(t *testing.T, a *app.App, name string) {
	t.Helper()
	require.NoError(t, a.CreateSource(name, config.SourceConfig{
		URL:                  "https://example.com/" + name + ".ics",
		FetchIntervalMinutes: 30,
	}))
}

func addOutput(t *testing.T, a *app.App, name string, out config.OutputConfig) {
	t.Helper()
	require.NoError(t, a.Config.Update(func(cfg *config.Config) error {
		cfg.Outputs[name] = &out
		return nil
	}))
}

func TestEndToEndArchiveHidePermanence(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")
	addOutput(t, a, "all", config.OutputConfig{})

	f.feeds["x"] = icstest.Feed(icstest.Event{UID: "u1", Summary: "Launch Review", Start: "20250301T090000Z"})
	require.NoError(t, a.FetchSource(t.Context(), "x"))

	u1 := model.EventKey{Source: "x", UID: "u1"}

	out, err := a.ComposeOutput("all")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, u1, out[0].Key)

	// Manual hide drops it from every output but never from the archive.
	require.NoError(t, a.HideEvent(u1))
	out, err = a.ComposeOutput("all")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, a.Archive.LoadAll(), u1)

	// Upstream drops the event entirely; the archive still retains it.
	f.feeds["x"] = icstest.Feed(icstest.Event{UID: "u2", Summary: "Other", Start: "20250302T090000Z"})
	require.NoError(t, a.FetchSource(t.Context(), "x"))
	assert.Contains(t, a.Archive.LoadAll(), u1)
}

func TestFetchFailureLeavesArchiveUntouched(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")

	f.feeds["x"] = icstest.Feed(icstest.Event{UID: "u1", Summary: "First"})
	require.NoError(t, a.FetchSource(t.Context(), "x"))

	f.errs["x"] = errors.New("connection refused")
	err := a.FetchSource(t.Context(), "x")
	require.Error(t, err)
	assert.Len(t, a.Archive.LoadSource("x"), 1)
}

func TestNotModifiedIsNotAnError(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")

	f.errs["x"] = fetch.ErrNotModified
	assert.NoError(t, a.FetchSource(t.Context(), "x"))
}

func TestFetchUnknownSource(t *testing.T) {
	a, _ := newTestApp(t)
	err := a.FetchSource(t.Context(), "ghost")
	assert.ErrorIs(t, err, app.ErrSourceNotFound)
}

func TestDisabledSourceIsSkipped(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")
	disabled := false
	require.NoError(t, a.UpdateSource("x", app.SourceUpdate{Enabled: &disabled}))

	f.feeds["x"] = icstest.Feed(icstest.Event{UID: "u1", Summary: "Ignored"})
	require.NoError(t, a.FetchSource(t.Context(), "x"))
	assert.Empty(t, a.Archive.LoadSource("x"))
}

func TestSeriesRuleAssignsOnMerge(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")

	id, err := a.CreateSeries("Standups")
	require.NoError(t, err)

	_, err = a.CreateRule(rules.Spec{
		Type:     rules.TypeTextMatch,
		Mode:     string(rules.ModeAddToSeries),
		Pattern:  "standup",
		SeriesID: id,
	})
	require.NoError(t, err)

	f.feeds["x"] = icstest.Feed(
		icstest.Event{UID: "u1", Summary: "Daily Standup", Start: "20250301T090000Z"},
		icstest.Event{UID: "u2", Summary: "Lunch", Start: "20250301T120000Z"},
	)
	require.NoError(t, a.FetchSource(t.Context(), "x"))

	s, ok := a.Series.Get(id)
	require.True(t, ok)
	assert.Equal(t, []model.EventKey{{Source: "x", UID: "u1"}}, s.Members)
}

func TestNewSeriesRuleAppliesRetroactively(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")

	f.feeds["x"] = icstest.Feed(
		icstest.Event{UID: "u1", Summary: "Daily Standup", Start: "20250301T090000Z"},
	)
	require.NoError(t, a.FetchSource(t.Context(), "x"))

	id, err := a.CreateSeries("Standups")
	require.NoError(t, err)
	_, err = a.CreateRule(rules.Spec{
		Type:     rules.TypeTextMatch,
		Mode:     string(rules.ModeAddToSeries),
		Pattern:  "standup",
		SeriesID: id,
	})
	require.NoError(t, err)

	s, _ := a.Series.Get(id)
	assert.Equal(t, []model.EventKey{{Source: "x", UID: "u1"}}, s.Members)
}

func TestCreateRuleRejections(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.CreateRule(rules.Spec{Type: rules.TypeTextMatch, Mode: "hide", Pattern: "(["})
	assert.ErrorIs(t, err, rules.ErrInvalidRule)

	_, err = a.CreateRule(rules.Spec{
		Type: rules.TypeTextMatch, Mode: string(rules.ModeAddToSeries),
		Pattern: "x", SeriesID: "no-such-series",
	})
	assert.ErrorIs(t, err, app.ErrSeriesNotFound)

	// Nothing was persisted.
	specs, err := a.ListRules()
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestDuplicateSeriesRuleRejected(t *testing.T) {
	a, _ := newTestApp(t)

	id, err := a.CreateSeries("Standups")
	require.NoError(t, err)

	spec := rules.Spec{
		Type: rules.TypeTextMatch, Mode: string(rules.ModeAddToSeries),
		Pattern: "standup", SeriesID: id,
	}
	_, err = a.CreateRule(spec)
	require.NoError(t, err)

	_, err = a.CreateRule(spec)
	assert.ErrorIs(t, err, app.ErrDuplicateRule)
}

func TestDeleteRule(t *testing.T) {
	a, _ := newTestApp(t)

	created, err := a.CreateRule(rules.Spec{Type: rules.TypeCategoryExclude, Categories: []string{"noise"}})
	require.NoError(t, err)

	require.NoError(t, a.DeleteRule(created.ID))
	assert.ErrorIs(t, a.DeleteRule(created.ID), app.ErrRuleNotFound)
}

func TestDeleteSeriesCascadesToRules(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")

	id, err := a.CreateSeries("Standups")
	require.NoError(t, err)
	_, err = a.CreateRule(rules.Spec{
		Type: rules.TypeTextMatch, Mode: string(rules.ModeAddToSeries),
		Pattern: "standup", SeriesID: id,
	})
	require.NoError(t, err)

	require.NoError(t, a.DeleteSeries(id))
	assert.ErrorIs(t, a.DeleteSeries(id), app.ErrSeriesNotFound)

	// The bound rule went with it.
	specs, err := a.ListRules()
	require.NoError(t, err)
	assert.Empty(t, specs)

	// A later merge has nowhere to assign and archives normally.
	f.feeds["x"] = icstest.Feed(icstest.Event{UID: "u1", Summary: "Daily Standup"})
	require.NoError(t, a.FetchSource(t.Context(), "x"))
	assert.False(t, a.Series.Exists(id))
}

func TestRuleDrivenHidingInOutputs(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")
	addOutput(t, a, "clean", config.OutputConfig{})

	_, err := a.CreateRule(rules.Spec{Type: rules.TypeCategoryExclude, Categories: []string{"cancelled"}})
	require.NoError(t, err)

	f.feeds["x"] = icstest.Feed(
		icstest.Event{UID: "u1", Summary: "Kept", Start: "20250301T090000Z"},
		icstest.Event{UID: "u2", Summary: "Dropped", Categories: []string{"cancelled"}, Start: "20250301T100000Z"},
	)
	require.NoError(t, a.FetchSource(t.Context(), "x"))

	out, err := a.ComposeOutput("clean")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Kept", out[0].Summary)
}

func TestComposeUnknownOutput(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.ComposeOutput("ghost")
	assert.ErrorIs(t, err, app.ErrOutputNotFound)
}

func TestOutputFeedWrapsVerbatimEvents(t *testing.T) {
	a, f := newTestApp(t)
	addSource(t, a, "x")
	addOutput(t, a, "all", config.OutputConfig{})

	f.feeds["x"] = icstest.Feed(icstest.Event{UID: "u1", Summary: "Launch Review", Start: "20250301T090000Z"})
	require.NoError(t, a.FetchSource(t.Context(), "x"))

	feed, err := a.OutputFeed("all")
	require.NoError(t, err)

	body := string(feed)
	assert.Contains(t, body, "PRODID:"+ics.ProductID)
	assert.Contains(t, body, "X-WR-CALNAME:all")
	assert.Contains(t, body, "UID:u1")
	assert.Contains(t, body, "SUMMARY:Launch Review")
	assert.Contains(t, body, "DTSTART:20250301T090000Z")
}
