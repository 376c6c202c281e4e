package app

import (
	"context"
	"fmt"

	"icalarchive/internal/config"
	appLog "icalarchive/internal/log"
)

// SourceUpdate carries the mutable fields of a source; nil means leave
// unchanged.
type SourceUpdate struct {
	URL                  *string
	FetchIntervalMinutes *int
	Enabled              *bool
}

// CreateSource registers a new feed subscription and schedules it.
func (a *App) CreateSource(name string, src config.SourceConfig) error {
	if err := config.ValidateSourceName(name); err != nil {
		return err
	}

	err := a.Config.Update(func(cfg *config.Config) error {
		if _, ok := cfg.Sources[name]; ok {
			return fmt.Errorf("%w: source %q", ErrAlreadyExists, name)
		}
		cfg.Sources[name] = &src
		return nil
	})
	if err != nil {
		return err
	}

	a.scheduleSource(name, &src)
	return nil
}

// UpdateSource patches a source and reschedules it.
func (a *App) UpdateSource(name string, upd SourceUpdate) error {
	var effective *config.SourceConfig

	err := a.Config.Update(func(cfg *config.Config) error {
		src, ok := cfg.Sources[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrSourceNotFound, name)
		}
		if upd.URL != nil {
			src.URL = *upd.URL
		}
		if upd.FetchIntervalMinutes != nil {
			src.FetchIntervalMinutes = *upd.FetchIntervalMinutes
		}
		if upd.Enabled != nil {
			src.Enabled = upd.Enabled
		}
		effective = src
		return nil
	})
	if err != nil {
		return err
	}

	a.scheduleSource(name, effective)
	return nil
}

// DeleteSource removes a source's subscription and trigger. Its archived
// events stay: the archive has no delete operation.
func (a *App) DeleteSource(name string) error {
	err := a.Config.Update(func(cfg *config.Config) error {
		if _, ok := cfg.Sources[name]; !ok {
			return fmt.Errorf("%w: %q", ErrSourceNotFound, name)
		}
		delete(cfg.Sources, name)
		return nil
	})
	if err != nil {
		return err
	}

	if a.Sched != nil {
		a.Sched.Unschedule(name)
	}
	return nil
}

// ScheduleAll registers triggers for every enabled source. Call once at
// startup after Sched.Start.
func (a *App) ScheduleAll() error {
	cfg, err := a.Config.Load()
	if err != nil {
		return err
	}
	for name, src := range cfg.Sources {
		a.scheduleSource(name, src)
	}
	return nil
}

func (a *App) scheduleSource(name string, src *config.SourceConfig) {
	if a.Sched == nil {
		return
	}
	if !src.IsEnabled() {
		a.Sched.Unschedule(name)
		appLog.Info("source disabled, not scheduling", "source", name)
		return
	}
	if err := a.Sched.Schedule(name, src.FetchIntervalMinutes, a.fetchCallback); err != nil {
		appLog.Error("scheduling failed", err, "source", name)
	}
}

// fetchCallback is the scheduler's entry into the core: one fetch+merge
// cycle. Errors are already logged and isolated per source.
func (a *App) fetchCallback(source string) {
	_ = a.FetchSource(context.Background(), source)
}
