// Package rules implements the stateless rule evaluator: category
// exclusion, text-pattern matching, and schedule-overlap conflicts.
//
// Rule is a closed tagged variant; evaluation sites type-switch over it
// exhaustively so a new rule kind is a compile-time-visible change.
package rules

import (
	"regexp"
	"sync"

	appLog "icalarchive/internal/log"
	"icalarchive/internal/model"
)

// TextField names the event field a text rule searches.
type TextField string

const (
	FieldSummary     TextField = "summary"
	FieldDescription TextField = "description"
)

// TextMode selects what a matching text rule does.
type TextMode string

const (
	// ModeHide removes matching events from composed outputs.
	ModeHide TextMode = "hide"
	// ModeAddToSeries assigns matching events to a series instead of
	// hiding them. Matching is on the summary field only.
	ModeAddToSeries TextMode = "add_to_series"
)

// Rule is one of CategoryExclude, TextMatch, OverlapConflict.
type Rule interface {
	RuleID() string
	isRule()
}

// CategoryExclude hides events whose category set intersects Categories.
type CategoryExclude struct {
	ID         string
	Categories []string
}

// TextMatch hides (or series-assigns) events whose Field contains
// Pattern, as a case-insensitive regular-expression search.
type TextMatch struct {
	ID       string
	Field    TextField
	Pattern  string
	Mode     TextMode
	SeriesID string // set iff Mode == ModeAddToSeries
}

// OverlapConflict scans pairs of events matching Pattern1 and Pattern2 on
// summary; when a pair's intervals overlap, the event on the HidePattern
// side is hidden.
type OverlapConflict struct {
	ID          string
	Pattern1    string
	Pattern2    string
	HidePattern int // 1 or 2
}

func (r CategoryExclude) RuleID() string { return r.ID }
func (r TextMatch) RuleID() string       { return r.ID }
func (r OverlapConflict) RuleID() string { return r.ID }

func (CategoryExclude) isRule() {}
func (TextMatch) isRule()       {}
func (OverlapConflict) isRule() {}

// HiddenSet computes every event key hidden by the given rules over the
// candidate set. The result is a union: an event hidden by several rules
// or pairs appears once. Series-mode text rules never hide.
func HiddenSet(rs []Rule, events map[model.EventKey]model.ArchivedEvent) map[model.EventKey]struct{} {
	hidden := make(map[model.EventKey]struct{})

	for _, r := range rs {
		switch r := r.(type) {
		case CategoryExclude:
			for key, ev := range events {
				if ev.HasAnyCategory(r.Categories) {
					hidden[key] = struct{}{}
				}
			}
		case TextMatch:
			if r.Mode != ModeHide {
				continue
			}
			for key, ev := range events {
				if MatchesText(r, &ev) {
					hidden[key] = struct{}{}
				}
			}
		case OverlapConflict:
			for key := range overlapHidden(r, events) {
				hidden[key] = struct{}{}
			}
		}
	}
	return hidden
}

// MatchesText reports whether ev's named field contains the rule's
// pattern. Series-mode rules match on summary regardless of Field.
func MatchesText(r TextMatch, ev *model.ArchivedEvent) bool {
	field := ev.Summary
	if r.Mode == ModeHide && r.Field == FieldDescription {
		field = ev.Description
	}
	return Search(r.Pattern, field)
}

// Search runs a case-insensitive regular-expression search (not a full
// match) of pattern in text. Patterns are validated at rule creation; a
// pattern that still fails to compile here counts as a non-match and is
// logged once.
func Search(pattern, text string) bool {
	re, err := compilePattern(pattern)
	if err != nil {
		logBadPatternOnce(pattern, err)
		return false
	}
	return re.MatchString(text)
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

var loggedBadPatterns sync.Map

func logBadPatternOnce(pattern string, err error) {
	if _, seen := loggedBadPatterns.LoadOrStore(pattern, struct{}{}); !seen {
		appLog.Error("rule pattern failed to compile, treating as non-match", err, "pattern", pattern)
	}
}
