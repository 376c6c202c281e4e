// Package app wires the core components together and owns the composed
// operations: the fetch+merge cycle, output composition, and the
// rule/series lifecycle with its cross-record contracts (validation,
// cascade delete). Everything is carried in an explicit App handle; no
// package-level state.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"icalarchive/internal/archive"
	"icalarchive/internal/compose"
	"icalarchive/internal/config"
	"icalarchive/internal/fetch"
	"icalarchive/internal/ics"
	appLog "icalarchive/internal/log"
	"icalarchive/internal/model"
	"icalarchive/internal/rules"
	"icalarchive/internal/scheduler"
	"icalarchive/internal/series"
	"icalarchive/internal/visibility"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrOutputNotFound = errors.New("output not found")
	ErrRuleNotFound   = errors.New("rule not found")
	ErrSeriesNotFound = errors.New("series not found")
	ErrAlreadyExists  = errors.New("already exists")

	// ErrDuplicateRule rejects a second add_to_series rule binding the
	// same series to the same pattern.
	ErrDuplicateRule = errors.New("duplicate rule for series and pattern")
)

// Fetcher is the outbound boundary. On error the cycle performs no merge
// and leaves the source's archive untouched.
type Fetcher interface {
	Fetch(ctx context.Context, source, url string) (fetch.Result, error)
}

// App bundles the core components behind one handle.
type App struct {
	Config  *config.Manager
	Archive *archive.Archive
	Hidden  *visibility.Visibility
	Series  *series.Registry
	Fetcher Fetcher
	Sched   *scheduler.Scheduler
}

// New builds an App from the config at path, creating a default config on
// first run.
func New(path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	return &App{
		Config:  config.NewManager(path),
		Archive: archive.NewFileArchive(cfg.DataDir),
		Hidden:  visibility.NewFile(cfg.DataDir),
		Series:  series.NewFile(cfg.DataDir),
		Fetcher: fetch.New(time.Duration(cfg.FetchTimeoutSeconds) * time.Second),
		Sched:   scheduler.New(),
	}, nil
}

// FetchSource runs one fetch+merge cycle for a source. Fetch failures
// skip the merge; the archive is never touched on a failed cycle. Newly
// merged events are scanned against add_to_series rules afterwards.
func (a *App) FetchSource(ctx context.Context, source string) error {
	cfg, err := a.Config.Load()
	if err != nil {
		return err
	}
	src, ok := cfg.Sources[source]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSourceNotFound, source)
	}
	if !src.IsEnabled() {
		appLog.Debug("source disabled, skipping fetch", "source", source)
		return nil
	}

	res, err := a.Fetcher.Fetch(ctx, source, src.URL)
	if err != nil {
		if errors.Is(err, fetch.ErrNotModified) {
			appLog.Debug("feed unchanged, nothing to merge", "source", source)
			return nil
		}
		appLog.Error("fetch failed, merge skipped", err, "source", source)
		return err
	}

	if err := a.Archive.SaveSnapshot(source, res.Body); err != nil {
		// Snapshot is informational only; the merge still proceeds.
		appLog.Error("snapshot save failed", err, "source", source)
	}

	inserted, err := a.Archive.Merge(source, res.Events)
	if err != nil {
		appLog.Error("merge failed", err, "source", source)
		return err
	}
	appLog.Info("merge completed", "source", source, "inserted", inserted, "fetched", len(res.Events))

	if inserted > 0 {
		a.assignSeries(cfg.Rules, a.Archive.LoadSource(source))
	}
	return nil
}

// assignSeries applies every add_to_series rule to the candidate events.
// Membership addition is idempotent, so re-scanning already-assigned
// events is harmless.
func (a *App) assignSeries(specs []rules.Spec, events map[model.EventKey]model.ArchivedEvent) {
	for _, r := range rules.CompileAll(specs) {
		tm, ok := r.(rules.TextMatch)
		if !ok || tm.Mode != rules.ModeAddToSeries {
			continue
		}
		for key, ev := range events {
			if !rules.MatchesText(tm, &ev) {
				continue
			}
			if !a.Series.AddMember(tm.SeriesID, key) {
				appLog.Error("series assignment failed", ErrSeriesNotFound, "series", tm.SeriesID, "rule_id", tm.ID)
				break
			}
		}
	}
}

// ComposeOutput answers "what events does this output currently show",
// ordered by start time then key.
func (a *App) ComposeOutput(name string) ([]model.ArchivedEvent, error) {
	cfg, err := a.Config.Load()
	if err != nil {
		return nil, err
	}
	out, ok := cfg.Outputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}

	return compose.Compose(
		out.Spec(),
		a.Hidden.Snapshot(),
		rules.CompileAll(cfg.Rules),
		a.Archive.LoadAll(),
	), nil
}

// OutputFeed renders an output as an ICS feed carrying each surviving
// event's original serialized form.
func (a *App) OutputFeed(name string) ([]byte, error) {
	events, err := a.ComposeOutput(name)
	if err != nil {
		return nil, err
	}
	return ics.SerializeFeed(name, events), nil
}

// HideEvent manually hides an event in every output.
func (a *App) HideEvent(key model.EventKey) error {
	return a.Hidden.Hide(key)
}

// UnhideEvent reverses a manual hide.
func (a *App) UnhideEvent(key model.EventKey) error {
	return a.Hidden.Unhide(key)
}
