package geo

import (
	"cmp"
	"slices"

	"calview/internal/model"
)

// BuildSegments derives a chained route from a flat event list: timed
// events with coordinates, in (date, start) order, each linked to the next.
// segments[i].To and segments[i+1].From are the same event.
func BuildSegments(events []model.Event) []Segment {
	located := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.HasCoordinates() || ev.Start == nil || ev.End == nil || *ev.Start >= *ev.End {
			continue
		}
		located = append(located, ev)
	}
	slices.SortStableFunc(located, func(a, b model.Event) int {
		if c := cmp.Compare(a.StartDate.String(), b.StartDate.String()); c != 0 {
			return c
		}
		return cmp.Compare(*a.Start, *b.Start)
	})

	var out []Segment
	for i := 0; i+1 < len(located); i++ {
		from, to := located[i], located[i+1]
		out = append(out, Segment{From: &from, To: &to})
	}
	return out
}
