package layout

import (
	"cmp"
	"math"
	"slices"

	"calview/internal/model"
)

// Default grid geometry, in pixels and percent.
const (
	DefaultHourHeight     = 60.0
	DefaultMinEventHeight = 20.0
	DefaultColumnGutter   = 2.0
)

// Geometry holds the grid constants used to turn times into pixels.
type Geometry struct {
	// HourHeight is the pixel height of one hour row.
	HourHeight float64 `json:"hour_height"`
	// MinEventHeight keeps very short events clickable.
	MinEventHeight float64 `json:"min_event_height"`
	// ColumnGutter is subtracted from each column's width (percent).
	ColumnGutter float64 `json:"column_gutter"`
}

// DefaultGeometry returns the standard grid constants.
func DefaultGeometry() Geometry {
	return Geometry{
		HourHeight:     DefaultHourHeight,
		MinEventHeight: DefaultMinEventHeight,
		ColumnGutter:   DefaultColumnGutter,
	}
}

func (g Geometry) normalized() Geometry {
	d := DefaultGeometry()
	// Comparisons are written so NaN takes the fallback branch.
	if !(g.HourHeight > 0) || math.IsInf(g.HourHeight, 1) {
		g.HourHeight = d.HourHeight
	}
	if !(g.MinEventHeight >= 0) || math.IsInf(g.MinEventHeight, 1) {
		g.MinEventHeight = d.MinEventHeight
	}
	if !(g.ColumnGutter >= 0) || math.IsInf(g.ColumnGutter, 1) {
		g.ColumnGutter = 0
	}
	return g
}

// Slot is an event's horizontal position among the concurrently
// overlapping events of its day. 0 <= Column < TotalColumns.
type Slot struct {
	Column       int `json:"column"`
	TotalColumns int `json:"total_columns"`
}

// Box is the rendered rectangle of an event. Top and Height are pixels
// from the top of the window; Left and Width are percentages of the day
// column.
type Box struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
}

// Placement is one timed event laid out in a day column.
type Placement struct {
	Key   string      `json:"key"`
	Event model.Event `json:"event"`
	Slot  Slot        `json:"slot"`
	Box   Box         `json:"box"`
}

// LayoutDay assigns columns and geometry to the timed events of one day
// using DefaultGeometry. See LayoutDayWith.
func LayoutDay(events []model.Event, w TimeWindow) []Placement {
	return LayoutDayWith(events, w, DefaultGeometry())
}

// LayoutDayWith lays out one day's timed events so that events whose
// [start, end) intervals intersect never share a column.
//
// Events are processed in start order; equal starts keep input order.
// Non-timed events are skipped. Every event in an overlap cluster gets the
// cluster's peak concurrency as TotalColumns so the cluster renders at a
// uniform width.
func LayoutDayWith(events []model.Event, w TimeWindow, g Geometry) []Placement {
	g = g.normalized()

	timed := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if Classify(ev) == Timed {
			timed = append(timed, ev)
		}
	}
	slices.SortStableFunc(timed, func(a, b model.Event) int {
		return cmp.Compare(*a.Start, *b.Start)
	})

	out := make([]Placement, 0, len(timed))
	for _, cluster := range clusters(timed) {
		columns := packColumns(cluster)
		total := 0
		for _, c := range columns {
			total = max(total, c+1)
		}
		for i, ev := range cluster {
			slot := Slot{Column: columns[i], TotalColumns: total}
			out = append(out, Placement{
				Key:   ev.Key(),
				Event: ev,
				Slot:  slot,
				Box:   boxFor(ev, slot, w, g),
			})
		}
	}
	return out
}

// LayoutDayMap is LayoutDay keyed by model.Event.Key. Events with the same
// key collapse to the last one laid out.
func LayoutDayMap(events []model.Event, w TimeWindow) map[string]Placement {
	placements := LayoutDay(events, w)
	m := make(map[string]Placement, len(placements))
	for _, p := range placements {
		m[p.Key] = p
	}
	return m
}

// clusters splits start-sorted events into maximal groups of transitively
// overlapping intervals.
func clusters(sorted []model.Event) [][]model.Event {
	var out [][]model.Event
	var cur []model.Event
	var curEnd model.Clock

	for _, ev := range sorted {
		if len(cur) > 0 && *ev.Start < curEnd {
			cur = append(cur, ev)
			curEnd = max(curEnd, *ev.End)
			continue
		}
		if len(cur) > 0 {
			out = append(out, cur)
		}
		cur = []model.Event{ev}
		curEnd = *ev.End
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// packColumns returns a column per event: the lowest column whose last
// event has ended by the event's start, or a new one.
func packColumns(cluster []model.Event) []int {
	ends := make([]model.Clock, 0, 4)
	cols := make([]int, len(cluster))

	for i, ev := range cluster {
		col := -1
		for c, end := range ends {
			if end <= *ev.Start {
				col = c
				break
			}
		}
		if col < 0 {
			ends = append(ends, *ev.End)
			col = len(ends) - 1
		} else {
			ends[col] = *ev.End
		}
		cols[i] = col
	}
	return cols
}

func boxFor(ev model.Event, slot Slot, w TimeWindow, g Geometry) Box {
	startMin := float64(ev.Start.Minutes() - w.StartHour*60)
	durMin := float64(ev.End.Minutes() - ev.Start.Minutes())

	total := float64(slot.TotalColumns)
	width := 100/total - g.ColumnGutter
	if width < 0 {
		width = 0
	}

	return Box{
		Top:    startMin / 60 * g.HourHeight,
		Height: max(durMin/60*g.HourHeight, g.MinEventHeight),
		Left:   float64(slot.Column) / total * 100,
		Width:  width,
	}
}
