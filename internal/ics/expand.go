package ics

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calview/internal/log"
	"calview/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// UnscheduledClock is the start and end time given to all-day events so
// they classify as having no fixed schedule.
var UnscheduledClock = model.NewClock(12, 0)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded events and optionally
// information about truncation.
type ExpandResult struct {
	// Events are sorted by (date, start, title) so repeated expansions of
	// the same input are identical.
	Events []model.Event
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// Expand takes a list of ParsedEvent (typically for one or more ICS
// sources) and expands them into dated model.Event values within the given
// time range. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics
//
// All resulting events are converted into the configured display
// timezone (ExpandConfig.DisplayLocation).
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	all := make([]model.Event, 0)

	uids := make([]string, 0, len(baseByUID))
	for uid := range baseByUID {
		uids = append(uids, uid)
	}
	slices.Sort(uids)

	for _, uid := range uids {
		baseEvents := baseByUID[uid]
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseEvents {
			occ, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			all = append(all, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	slices.SortStableFunc(all, func(a, b model.Event) int {
		if c := cmp.Compare(a.StartDate.String(), b.StartDate.String()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.StartString(), b.StartString()); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})

	result.Events = all
	return result, nil
}

// expandEvent expands one base event plus its RECURRENCE-ID overrides,
// reporting whether the occurrence cap was hit.
func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.RawRRule == "" {
		if !timeRangesOverlap(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
			return nil, false
		}
		return []model.Event{instance(ev, overrides, ev.Start, ev.End, cfg)}, false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	loc := ev.Start.Location()
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(loc))
	}

	starts := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)
	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	// Every instance keeps the base event's duration.
	dur := ev.End.Sub(ev.Start)
	out := make([]model.Event, 0, len(starts))
	for _, start := range starts {
		out = append(out, instance(ev, overrides, start, start.Add(dur), cfg))
	}
	return out, hitCap
}

// instance builds one event, preferring an override whose RECURRENCE-ID
// equals start.
func instance(ev ParsedEvent, overrides []ParsedEvent, start, end time.Time, cfg ExpandConfig) model.Event {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return toEvent(ov, ov.Start, ov.End, cfg.DisplayLocation)
		}
	}
	return toEvent(ev, start, end, cfg.DisplayLocation)
}

// toEvent converts a (possibly overridden) ParsedEvent + specific
// start/end time into a model.Event on its start day in displayLoc.
//
// All-day events get the unscheduled sentinel. A timed event running past
// midnight is cut at 23:59 of its start day.
func toEvent(ev ParsedEvent, start, end time.Time, displayLoc *time.Location) model.Event {
	out := model.Event{
		SourceID:  ev.Source.ID,
		UID:       ev.UID,
		Title:     ev.Summary,
		Location:  ev.Location,
		Latitude:  ev.Latitude,
		Longitude: ev.Longitude,
	}

	if ev.AllDay {
		// All-day dates are calendar days; do not shift them across zones.
		out.StartDate = model.DateOf(start)
		s, e := UnscheduledClock, UnscheduledClock
		out.Start, out.End = &s, &e
		return out
	}

	startLocal := start.In(displayLoc)
	endLocal := end.In(displayLoc)
	out.StartDate = model.DateOf(startLocal)

	s := model.ClockOf(startLocal)
	e := model.ClockOf(endLocal)
	if model.DateOf(endLocal) != out.StartDate && endLocal.After(startLocal) {
		e = model.NewClock(23, 59)
	}
	out.Start, out.End = &s, &e
	return out
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
