// Package compose derives output feeds: archive + hidden set + rules +
// per-output filter spec in, ordered event list out.
package compose

import (
	"sort"

	"icalarchive/internal/model"
	"icalarchive/internal/rules"
)

// Compose answers "what events does this output currently show". Events
// are dropped when manually hidden, hidden by any rule, or filtered out
// by the output spec; survivors come back sorted by start time then key
// so two composes over the same state produce identical feeds.
func Compose(
	spec model.OutputSpec,
	hidden map[model.EventKey]struct{},
	rs []rules.Rule,
	events map[model.EventKey]model.ArchivedEvent,
) []model.ArchivedEvent {
	ruleHidden := rules.HiddenSet(rs, events)

	out := make([]model.ArchivedEvent, 0, len(events))
	for key, ev := range events {
		if _, ok := hidden[key]; ok {
			continue
		}
		if _, ok := ruleHidden[key]; ok {
			continue
		}
		if !matchesSpec(spec, &ev) {
			continue
		}
		out = append(out, ev)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		switch {
		case a.Start == nil && b.Start == nil:
			// fall through to key order
		case a.Start == nil:
			return true
		case b.Start == nil:
			return false
		case !a.Start.Equal(*b.Start):
			return a.Start.Before(*b.Start)
		}
		return a.Key.String() < b.Key.String()
	})
	return out
}

func matchesSpec(spec model.OutputSpec, ev *model.ArchivedEvent) bool {
	// Source allow-list; empty means all sources.
	if len(spec.IncludeSources) > 0 {
		found := false
		for _, s := range spec.IncludeSources {
			if ev.Key.Source == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// Category include is any-of, exclude is none-of.
	if len(spec.IncludeCategories) > 0 && !ev.HasAnyCategory(spec.IncludeCategories) {
		return false
	}
	if ev.HasAnyCategory(spec.ExcludeCategories) {
		return false
	}

	if spec.IncludeSummaryPattern != "" && !rules.Search(spec.IncludeSummaryPattern, ev.Summary) {
		return false
	}
	if spec.ExcludeSummaryPattern != "" && rules.Search(spec.ExcludeSummaryPattern, ev.Summary) {
		return false
	}
	return true
}
