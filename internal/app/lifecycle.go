package app

import (
	"fmt"

	"github.com/google/uuid"

	"icalarchive/internal/config"
	appLog "icalarchive/internal/log"
	"icalarchive/internal/rules"
)

// CreateRule validates and persists a new rule, assigning it an id.
// Rejections (bad pattern, unknown series, duplicate series+pattern) are
// synchronous and leave the record set unchanged. A new add_to_series
// rule is applied retroactively to the whole archive before returning.
func (a *App) CreateRule(spec rules.Spec) (rules.Spec, error) {
	spec.ID = uuid.NewString()

	rule, err := rules.Compile(spec)
	if err != nil {
		return rules.Spec{}, err
	}

	if tm, ok := rule.(rules.TextMatch); ok && tm.Mode == rules.ModeAddToSeries {
		if !a.Series.Exists(tm.SeriesID) {
			return rules.Spec{}, fmt.Errorf("%w: %q", ErrSeriesNotFound, tm.SeriesID)
		}
	}

	err = a.Config.Update(func(cfg *config.Config) error {
		for _, existing := range cfg.Rules {
			if existing.Type == rules.TypeTextMatch &&
				existing.Mode == string(rules.ModeAddToSeries) &&
				existing.SeriesID == spec.SeriesID &&
				existing.Pattern == spec.Pattern &&
				spec.SeriesID != "" {
				return fmt.Errorf("%w: series %q pattern %q", ErrDuplicateRule, spec.SeriesID, spec.Pattern)
			}
		}
		cfg.Rules = append(cfg.Rules, spec)
		return nil
	})
	if err != nil {
		return rules.Spec{}, err
	}

	if tm, ok := rule.(rules.TextMatch); ok && tm.Mode == rules.ModeAddToSeries {
		a.assignSeries([]rules.Spec{spec}, a.Archive.LoadAll())
	}

	appLog.Info("rule created", "rule_id", spec.ID, "type", spec.Type)
	return spec, nil
}

// DeleteRule removes a rule by id.
func (a *App) DeleteRule(id string) error {
	return a.Config.Update(func(cfg *config.Config) error {
		kept := cfg.Rules[:0]
		found := false
		for _, r := range cfg.Rules {
			if r.ID == id {
				found = true
				continue
			}
			kept = append(kept, r)
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrRuleNotFound, id)
		}
		cfg.Rules = kept
		return nil
	})
}

// ListRules returns the persisted rule records.
func (a *App) ListRules() ([]rules.Spec, error) {
	cfg, err := a.Config.Load()
	if err != nil {
		return nil, err
	}
	return cfg.Rules, nil
}

// CreateSeries registers a new series and returns its derived id.
// Existing archived events matching a later add_to_series rule are
// assigned when that rule is created, not here.
func (a *App) CreateSeries(name string) (string, error) {
	id, err := a.Series.Create(name)
	if err != nil {
		return "", err
	}
	appLog.Info("series created", "series", id, "name", name)
	return id, nil
}

// DeleteSeries removes a series and, as part of the same logical
// operation, every rule referencing it. After the cascade a merge no
// longer assigns events to the deleted series.
func (a *App) DeleteSeries(id string) error {
	if !a.Series.Delete(id) {
		return fmt.Errorf("%w: %q", ErrSeriesNotFound, id)
	}

	err := a.Config.Update(func(cfg *config.Config) error {
		kept := cfg.Rules[:0]
		removed := 0
		for _, r := range cfg.Rules {
			if r.SeriesID == id {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		cfg.Rules = kept
		if removed > 0 {
			appLog.Info("cascade-deleted series rules", "series", id, "removed", removed)
		}
		return nil
	})
	if err != nil {
		// The series itself is gone; stale rules will be skipped at
		// evaluation but should not linger.
		appLog.Error("cascade delete of series rules failed", err, "series", id)
		return err
	}
	return nil
}
