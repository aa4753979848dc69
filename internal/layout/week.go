package layout

import (
	"slices"
	"strings"
	"time"

	"calview/internal/model"
)

// DaysPerWeek is the number of day columns in a week view.
const DaysPerWeek = 7

// WeekOptions controls BuildWeek.
type WeekOptions struct {
	// FirstDay is the weekday in the first column. Zero value is Sunday.
	FirstDay time.Weekday
	// Today marks the matching day column; zero Date marks none.
	Today model.Date
	// Geometry overrides the pixel constants; zero fields use defaults.
	Geometry Geometry
}

// Day is one column of a week view.
type Day struct {
	Date       model.Date  `json:"date"`
	IsToday    bool        `json:"is_today"`
	IsSelected bool        `json:"is_selected"`
	Events     []Placement `json:"events"`
}

// Week is the complete grid layout for the week containing Selected.
type Week struct {
	Start       model.Date    `json:"start"`
	Selected    model.Date    `json:"selected"`
	Window      TimeWindow    `json:"window"`
	Slots       []int         `json:"slots"`
	Days        []Day         `json:"days"`
	Independent []model.Event `json:"independent"`
	// EventDates lists every distinct date with at least one event, across
	// the whole input, for date-picker markers.
	EventDates []model.Date `json:"event_dates"`
}

// ParseWeekday maps "sunday"/"monday"/... to a weekday. Unknown names
// return Sunday.
func ParseWeekday(name string) time.Weekday {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Sunday
	}
}

// WeekStart returns the first day of the week containing d.
func WeekStart(d model.Date, first time.Weekday) model.Date {
	back := (int(d.Weekday()) - int(first) + DaysPerWeek) % DaysPerWeek
	return d.AddDays(-back)
}

// BuildWeek lays out the week containing selected. The time window is
// resolved once from all timed events of the week, so every day column
// shares the same hour rows.
func BuildWeek(events []model.Event, selected model.Date, opts WeekOptions) Week {
	start := WeekStart(selected, opts.FirstDay)

	index := make(map[model.Date]int, DaysPerWeek)
	for i := 0; i < DaysPerWeek; i++ {
		index[start.AddDays(i)] = i
	}

	byDay := make([][]model.Event, DaysPerWeek)
	var weekTimed, independent []model.Event
	for _, ev := range events {
		i, ok := index[ev.StartDate]
		if !ok {
			continue
		}
		switch Classify(ev) {
		case Timed:
			weekTimed = append(weekTimed, ev)
			byDay[i] = append(byDay[i], ev)
		case Independent:
			independent = append(independent, ev)
		}
	}

	window := ResolveTimeWindow(weekTimed)

	days := make([]Day, DaysPerWeek)
	for i := range days {
		date := start.AddDays(i)
		days[i] = Day{
			Date:       date,
			IsToday:    !opts.Today.IsZero() && date == opts.Today,
			IsSelected: date == selected,
			Events:     LayoutDayWith(byDay[i], window, opts.Geometry),
		}
	}

	return Week{
		Start:       start,
		Selected:    selected,
		Window:      window,
		Slots:       window.Slots(),
		Days:        days,
		Independent: independent,
		EventDates:  eventDates(events),
	}
}

func eventDates(events []model.Event) []model.Date {
	seen := make(map[model.Date]struct{}, len(events))
	out := make([]model.Date, 0)
	for _, ev := range events {
		if ev.StartDate.IsZero() {
			continue
		}
		if _, ok := seen[ev.StartDate]; ok {
			continue
		}
		seen[ev.StartDate] = struct{}{}
		out = append(out, ev.StartDate)
	}
	slices.SortFunc(out, func(a, b model.Date) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}
