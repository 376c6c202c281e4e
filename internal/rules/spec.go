package rules

import (
	"errors"
	"fmt"

	appLog "icalarchive/internal/log"
)

// ErrInvalidRule marks creation-time rejections: malformed patterns,
// unknown types, missing parameters. Invalid rules are never persisted.
var ErrInvalidRule = errors.New("invalid rule")

// Rule type tags as persisted in config records.
const (
	TypeCategoryExclude = "category_exclude"
	TypeTextMatch       = "text_match"
	TypeOverlapConflict = "overlap_conflict"
)

// Spec is the serialized form of a rule, as stored in the config record
// set. Compile turns it into a Rule variant, validating as it goes.
type Spec struct {
	ID   string `yaml:"id" json:"id"`
	Type string `yaml:"type" json:"type"`

	// category_exclude
	Categories []string `yaml:"categories,omitempty" json:"categories,omitempty"`

	// text_match
	Field    string `yaml:"field,omitempty" json:"field,omitempty"`
	Pattern  string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Mode     string `yaml:"mode,omitempty" json:"mode,omitempty"`
	SeriesID string `yaml:"series_id,omitempty" json:"series_id,omitempty"`

	// overlap_conflict
	Pattern1    string `yaml:"pattern1,omitempty" json:"pattern1,omitempty"`
	Pattern2    string `yaml:"pattern2,omitempty" json:"pattern2,omitempty"`
	HidePattern int    `yaml:"hide_pattern,omitempty" json:"hide_pattern,omitempty"`
}

// Compile validates a spec and returns the corresponding variant.
// Referential checks (the series of an add_to_series rule existing,
// duplicate detection) belong to the app layer, which owns both records.
func Compile(s Spec) (Rule, error) {
	switch s.Type {
	case TypeCategoryExclude:
		if len(s.Categories) == 0 {
			return nil, fmt.Errorf("%w: category_exclude needs at least one category", ErrInvalidRule)
		}
		return CategoryExclude{ID: s.ID, Categories: s.Categories}, nil

	case TypeTextMatch:
		if err := checkPattern(s.Pattern); err != nil {
			return nil, err
		}
		mode := TextMode(s.Mode)
		switch mode {
		case ModeHide, ModeAddToSeries:
		default:
			return nil, fmt.Errorf("%w: unknown text_match mode %q", ErrInvalidRule, s.Mode)
		}
		field := TextField(s.Field)
		switch {
		case mode == ModeAddToSeries:
			if field == FieldDescription {
				return nil, fmt.Errorf("%w: add_to_series rules match on summary only", ErrInvalidRule)
			}
			if s.SeriesID == "" {
				return nil, fmt.Errorf("%w: add_to_series rule needs a series_id", ErrInvalidRule)
			}
			field = FieldSummary
		case field == FieldSummary || field == FieldDescription:
		case field == "":
			field = FieldSummary
		default:
			return nil, fmt.Errorf("%w: unknown text_match field %q", ErrInvalidRule, s.Field)
		}
		return TextMatch{ID: s.ID, Field: field, Pattern: s.Pattern, Mode: mode, SeriesID: s.SeriesID}, nil

	case TypeOverlapConflict:
		if err := checkPattern(s.Pattern1); err != nil {
			return nil, err
		}
		if err := checkPattern(s.Pattern2); err != nil {
			return nil, err
		}
		if s.HidePattern != 1 && s.HidePattern != 2 {
			return nil, fmt.Errorf("%w: hide_pattern must be 1 or 2, got %d", ErrInvalidRule, s.HidePattern)
		}
		return OverlapConflict{ID: s.ID, Pattern1: s.Pattern1, Pattern2: s.Pattern2, HidePattern: s.HidePattern}, nil

	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, s.Type)
	}
}

// CompileAll compiles persisted specs, skipping (and logging) any that no
// longer compile, so one broken record never blocks evaluation of the
// rest.
func CompileAll(specs []Spec) []Rule {
	out := make([]Rule, 0, len(specs))
	for _, s := range specs {
		r, err := Compile(s)
		if err != nil {
			appLog.Error("skipping invalid persisted rule", err, "rule_id", s.ID, "type", s.Type)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Encode is the inverse of Compile, for persisting a rule back into the
// config record set.
func Encode(r Rule) Spec {
	switch r := r.(type) {
	case CategoryExclude:
		return Spec{ID: r.ID, Type: TypeCategoryExclude, Categories: r.Categories}
	case TextMatch:
		return Spec{ID: r.ID, Type: TypeTextMatch, Field: string(r.Field), Pattern: r.Pattern, Mode: string(r.Mode), SeriesID: r.SeriesID}
	case OverlapConflict:
		return Spec{ID: r.ID, Type: TypeOverlapConflict, Pattern1: r.Pattern1, Pattern2: r.Pattern2, HidePattern: r.HidePattern}
	default:
		// The variant set is closed; a new kind must be added here.
		panic(fmt.Sprintf("rules: unknown rule variant %T", r))
	}
}

func checkPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidRule)
	}
	if _, err := compilePattern(pattern); err != nil {
		return fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidRule, pattern, err)
	}
	return nil
}
