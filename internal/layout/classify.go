// Package layout positions timed events in a day/week time grid.
//
// Every function here is pure: it reads its arguments, never mutates them,
// and returns freshly allocated results. Callers may recompute a full week
// whenever its inputs change and swap the result in wholesale.
package layout

import "calview/internal/model"

// Kind tags an event as either part of the time grid or unscheduled.
type Kind int

const (
	// Independent events have no usable time range and are listed
	// separately from the grid ("Other / No Fixed Schedule").
	Independent Kind = iota
	// Timed events have start < end on the same day.
	Timed
)

func (k Kind) String() string {
	switch k {
	case Timed:
		return "timed"
	default:
		return "independent"
	}
}

// Classify returns Timed iff both start and end are present and start < end.
// Anything else, including equal or inverted times, is Independent.
func Classify(ev model.Event) Kind {
	if ev.Start == nil || ev.End == nil {
		return Independent
	}
	if *ev.Start < *ev.End {
		return Timed
	}
	return Independent
}

// Split partitions events by kind, keeping input order in both results.
func Split(events []model.Event) (timed, independent []model.Event) {
	for _, ev := range events {
		switch Classify(ev) {
		case Timed:
			timed = append(timed, ev)
		case Independent:
			independent = append(independent, ev)
		}
	}
	return timed, independent
}
