package rules

import (
	"time"

	"icalarchive/internal/model"
)

// Overlaps reports whether two events' intervals intersect under
// half-open semantics: a.start < b.end && b.start < a.end. An event
// without an end is a point event (end = start); an event without a
// start never overlaps anything.
func Overlaps(a, b *model.ArchivedEvent) bool {
	if a.Start == nil || b.Start == nil {
		return false
	}
	aEnd := intervalEnd(a)
	bEnd := intervalEnd(b)
	return a.Start.Before(bEnd) && b.Start.Before(aEnd)
}

func intervalEnd(ev *model.ArchivedEvent) time.Time {
	if ev.End != nil {
		return *ev.End
	}
	return *ev.Start
}

// overlapHidden runs the pairwise conflict scan for one rule over the
// candidate set. O(|P1|*|P2|); fine at current volumes, an interval tree
// would cut it down without changing the observable result.
func overlapHidden(r OverlapConflict, events map[model.EventKey]model.ArchivedEvent) map[model.EventKey]struct{} {
	var p1, p2 []model.ArchivedEvent
	for _, ev := range events {
		if Search(r.Pattern1, ev.Summary) {
			p1 = append(p1, ev)
		}
		if Search(r.Pattern2, ev.Summary) {
			p2 = append(p2, ev)
		}
	}

	hidden := make(map[model.EventKey]struct{})
	for i := range p1 {
		for j := range p2 {
			a, b := &p1[i], &p2[j]
			if a.Key == b.Key || !Overlaps(a, b) {
				continue
			}
			switch r.HidePattern {
			case 1:
				hidden[a.Key] = struct{}{}
			case 2:
				hidden[b.Key] = struct{}{}
			}
		}
	}
	return hidden
}
