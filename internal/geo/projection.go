// Package geo places map markers for schedule events so that co-located
// markers stay individually clickable, are labeled in chronological order,
// and are framed by the resulting viewport.
//
// The package never talks to a map widget. Screen-space math goes through
// a Projection supplied by the caller; Mercator is provided for servers and
// tests that have no live map.
package geo

import "math"

// LngLat is a geographic coordinate in degrees.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Point is a screen-space position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Projection converts between geographic and screen coordinates at a fixed
// zoom level.
type Projection interface {
	Project(LngLat) Point
	Unproject(Point) LngLat
	Zoom() float64
}

const (
	// DefaultTileSize matches vector-tile map widgets (512px tiles).
	DefaultTileSize = 512.0
	// DefaultZoom is assumed when a map reports no zoom yet.
	DefaultZoom = 14.0
	// MaxZoomLevel caps every zoom; deeper levels overflow world sizes
	// long before any map widget would render them.
	MaxZoomLevel = 24.0

	maxMercatorLat = 85.051128779806604
)

// Mercator is a Web Mercator projection into world pixels at ZoomLevel.
type Mercator struct {
	ZoomLevel float64
	TileSize  float64
}

// NewMercator returns a Mercator at zoom with the default tile size. A
// non-positive or non-finite zoom falls back to DefaultZoom; larger zooms
// are capped at MaxZoomLevel.
func NewMercator(zoom float64) Mercator {
	return Mercator{ZoomLevel: clampZoom(zoom, DefaultZoom), TileSize: DefaultTileSize}
}

func clampZoom(zoom, fallback float64) float64 {
	if !isFinite(zoom) || zoom <= 0 {
		return fallback
	}
	return math.Min(zoom, MaxZoomLevel)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (m Mercator) Zoom() float64 { return m.ZoomLevel }

func (m Mercator) worldSize() float64 {
	ts := m.TileSize
	if ts <= 0 {
		ts = DefaultTileSize
	}
	return ts * math.Exp2(m.ZoomLevel)
}

func (m Mercator) Project(ll LngLat) Point {
	size := m.worldSize()
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, ll.Lat))
	phi := lat * math.Pi / 180

	x := (ll.Lng + 180) / 360 * size
	y := (1 - math.Log(math.Tan(math.Pi/4+phi/2))/math.Pi) / 2 * size
	return Point{X: x, Y: y}
}

func (m Mercator) Unproject(p Point) LngLat {
	size := m.worldSize()
	lng := p.X/size*360 - 180
	n := math.Pi * (1 - 2*p.Y/size)
	lat := math.Atan(math.Sinh(n)) * 180 / math.Pi
	return LngLat{Lng: lng, Lat: lat}
}
