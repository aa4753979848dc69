package geo

import (
	"cmp"
	"math"
	"slices"

	"calview/internal/model"
)

// HomeTitle marks the event drawn with the home glyph instead of a number.
const HomeTitle = "Home"

// Rosette parameters for co-located markers.
const (
	// OffsetRadius is the first ring's distance from the true position, in
	// screen pixels.
	OffsetRadius = 15.0
	// RingGrowth widens the radius by this fraction per completed ring.
	RingGrowth = 0.3
	// MarkersPerRing is how many offset markers share one ring radius.
	MarkersPerRing = 4
)

// Segment is one travel leg between two events. Consecutive legs share
// endpoints: segments[i].To is segments[i+1].From.
type Segment struct {
	From *model.Event `json:"from"`
	To   *model.Event `json:"to"`
}

// MarkerPlacement is one marker to draw.
type MarkerPlacement struct {
	Key   string      `json:"key"`
	Event model.Event `json:"event"`
	// Label is the 1-based chronological number; 0 for the Home marker.
	Label int  `json:"label"`
	Home  bool `json:"home"`
	// Original is the event's own coordinate; Coordinates is where the
	// marker is drawn after collision offsetting.
	Original      LngLat `json:"original"`
	Coordinates   LngLat `json:"coordinates"`
	SequenceIndex int    `json:"sequence_index"`
}

// Result is the full output of Declutter.
type Result struct {
	Placements []MarkerPlacement `json:"placements"`
	// Viewport is nil when nothing was placed; the view should be left as is.
	Viewport *Viewport `json:"viewport"`
	// Zoom is the projection zoom the offsets were computed at.
	Zoom float64 `json:"zoom"`
}

// Declutter orders, deduplicates, labels and separates the markers for a
// route (segments) plus standalone events.
//
// Candidates are every segment origin in order, the last segment's
// destination, then the standalone events. They are stably sorted by
// (start date, start time). Events without coordinates and repeats of an
// already placed event key are dropped. Markers sharing an exact coordinate
// fan out around it on a rosette computed in screen space at p's zoom.
func Declutter(segments []Segment, standalone []model.Event, p Projection) Result {
	candidates := Candidates(segments, standalone)

	placements := make([]MarkerPlacement, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	atLocation := make(map[LngLat]int)
	bounds := Bounds{}
	label := 0

	for _, ev := range candidates {
		if !Plottable(ev) {
			continue
		}
		key := ev.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		orig := LngLat{Lng: *ev.Longitude, Lat: *ev.Latitude}
		mp := MarkerPlacement{
			Key:           key,
			Event:         ev,
			Original:      orig,
			Coordinates:   orig,
			SequenceIndex: len(placements),
		}

		// Home keeps its true position but still takes a slot, so other
		// markers at the same point fan out around it.
		n := atLocation[orig]
		atLocation[orig] = n + 1
		if ev.Title == HomeTitle {
			mp.Home = true
		} else {
			label++
			mp.Label = label
			mp.Coordinates = Offset(p, orig, n)
		}

		placements = append(placements, mp)
		bounds = bounds.Extend(orig)
	}

	res := Result{Placements: placements, Zoom: p.Zoom()}
	if len(placements) > 0 {
		vp := NewViewport(bounds)
		res.Viewport = &vp
	}
	return res
}

// Plottable reports whether ev has finite coordinates to place it by.
func Plottable(ev model.Event) bool {
	return ev.HasCoordinates() && isFinite(*ev.Longitude) && isFinite(*ev.Latitude)
}

// Candidates flattens segments and standalone events into the stably
// sorted candidate list Declutter works on. Nil endpoints are skipped.
func Candidates(segments []Segment, standalone []model.Event) []model.Event {
	out := make([]model.Event, 0, len(segments)+1+len(standalone))
	for _, s := range segments {
		if s.From != nil {
			out = append(out, *s.From)
		}
	}
	if len(segments) > 0 {
		if last := segments[len(segments)-1].To; last != nil {
			out = append(out, *last)
		}
	}
	out = append(out, standalone...)

	slices.SortStableFunc(out, func(a, b model.Event) int {
		if c := cmp.Compare(a.StartDate.String(), b.StartDate.String()); c != 0 {
			return c
		}
		return cmp.Compare(a.StartString(), b.StartString())
	})
	return out
}

// Offset returns where the n-th marker (0-based) at ll is drawn. The first
// keeps ll; the next MarkersPerRing go east, south, west and north of it in
// screen space, and each further ring is RingGrowth wider.
func Offset(p Projection, ll LngLat, n int) LngLat {
	if n <= 0 {
		return ll
	}
	i := n - 1
	angle := float64(i) * math.Pi / 2
	radius := OffsetRadius * (1 + float64(i/MarkersPerRing)*RingGrowth)

	c := p.Project(ll)
	return p.Unproject(Point{
		X: c.X + radius*math.Cos(angle),
		Y: c.Y + radius*math.Sin(angle),
	})
}
