package layout

import "calview/internal/model"

const (
	// MinHours is the smallest span a resolved window may have.
	MinHours = 9

	defaultStartHour = 8
	defaultEndHour   = 17
)

// TimeWindow is the visible hour range [StartHour, EndHour) of a grid.
type TimeWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// DefaultWindow is used when a week has no timed events.
var DefaultWindow = TimeWindow{StartHour: defaultStartHour, EndHour: defaultEndHour}

// Hours returns the number of hour rows.
func (w TimeWindow) Hours() int {
	return w.EndHour - w.StartHour
}

// Slots returns the hour rows StartHour, StartHour+1, ..., EndHour-1.
func (w TimeWindow) Slots() []int {
	slots := make([]int, 0, w.Hours())
	for h := w.StartHour; h < w.EndHour; h++ {
		slots = append(slots, h)
	}
	return slots
}

// Contains reports whether a timed event fits entirely inside the window.
func (w TimeWindow) Contains(ev model.Event) bool {
	if Classify(ev) != Timed {
		return false
	}
	return ev.Start.Minutes() >= w.StartHour*60 && ev.End.Minutes() <= w.EndHour*60
}

// ResolveTimeWindow picks the hour range that comfortably bounds the timed
// events of a week. Non-timed events in the input are ignored.
//
// The range is padded by an hour on each side, then widened to at least
// MinHours (split as evenly as possible, extra hour after), then re-anchored
// against midnight if clamping left it short.
func ResolveTimeWindow(events []model.Event) TimeWindow {
	minHour, maxHour := 24, 0
	found := false

	for _, ev := range events {
		if Classify(ev) != Timed {
			continue
		}
		found = true

		startHour := ev.Start.Hour()
		endHour := ev.End.Hour()
		// A partial hour still gets a full row.
		if ev.End.Minute() > 0 {
			endHour++
		}

		if startHour < minHour {
			minHour = startHour
		}
		if endHour > maxHour {
			maxHour = endHour
		}
	}

	if !found {
		return DefaultWindow
	}

	start := max(0, minHour-1)
	end := min(24, maxHour+1)

	if span := end - start; span < MinHours {
		shortfall := MinHours - span
		before := shortfall / 2
		after := shortfall - before

		start = max(0, start-before)
		end = min(24, end+after)

		if end-start < MinHours {
			if start == 0 {
				end = min(24, MinHours)
			} else {
				start = max(0, 24-MinHours)
			}
		}
	}

	return TimeWindow{StartHour: start, EndHour: end}
}
