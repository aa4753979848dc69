package geo

import (
	"math"
	"time"
)

// Fit-bounds defaults for the marker view.
const (
	DefaultPadding      = 100.0
	DefaultMaxZoom      = 15.0
	DefaultFitDuration  = time.Second
	minCameraAvailable  = 1.0
	minCameraZoom       = 0.0
	defaultScreenWidth  = 1024.0
	defaultScreenHeight = 768.0
)

// Bounds is a lng/lat bounding box. The zero value is empty.
type Bounds struct {
	SW    LngLat `json:"sw"`
	NE    LngLat `json:"ne"`
	Valid bool   `json:"-"`
}

// Extend grows b to include ll.
func (b Bounds) Extend(ll LngLat) Bounds {
	if !b.Valid {
		return Bounds{SW: ll, NE: ll, Valid: true}
	}
	b.SW.Lng = math.Min(b.SW.Lng, ll.Lng)
	b.SW.Lat = math.Min(b.SW.Lat, ll.Lat)
	b.NE.Lng = math.Max(b.NE.Lng, ll.Lng)
	b.NE.Lat = math.Max(b.NE.Lat, ll.Lat)
	return b
}

// Center returns the midpoint of b in lng/lat.
func (b Bounds) Center() LngLat {
	return LngLat{Lng: (b.SW.Lng + b.NE.Lng) / 2, Lat: (b.SW.Lat + b.NE.Lat) / 2}
}

// Padding is an inset in screen pixels.
type Padding struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// finite zeroes any non-finite side.
func (p Padding) finite() Padding {
	for _, side := range []*float64{&p.Top, &p.Bottom, &p.Left, &p.Right} {
		if !isFinite(*side) {
			*side = 0
		}
	}
	return p
}

// UniformPadding returns the same inset on every side.
func UniformPadding(px float64) Padding {
	return Padding{Top: px, Bottom: px, Left: px, Right: px}
}

// Viewport is a request to transition the map so Bounds is framed.
type Viewport struct {
	Bounds   Bounds        `json:"bounds"`
	Padding  Padding       `json:"padding"`
	MaxZoom  float64       `json:"max_zoom"`
	Pitch    float64       `json:"pitch"`
	Duration time.Duration `json:"duration"`
}

// NewViewport frames b with the default padding, zoom cap and a flat
// top-down pitch.
func NewViewport(b Bounds) Viewport {
	return Viewport{
		Bounds:   b,
		Padding:  UniformPadding(DefaultPadding),
		MaxZoom:  DefaultMaxZoom,
		Pitch:    0,
		Duration: DefaultFitDuration,
	}
}

// Configure replaces the padding and zoom cap with configured values.
// A value that is not finite and > 0 leaves the current setting alone.
func (v *Viewport) Configure(padding, maxZoom float64) {
	if isFinite(padding) && padding > 0 {
		v.Padding = UniformPadding(padding)
	}
	if isFinite(maxZoom) && maxZoom > 0 {
		v.MaxZoom = maxZoom
	}
}

// Camera is a resolved map view.
type Camera struct {
	Center LngLat  `json:"center"`
	Zoom   float64 `json:"zoom"`
	Pitch  float64 `json:"pitch"`
}

// Camera solves the viewport for a screen of width x height pixels: the
// largest zoom (capped at MaxZoom) at which Bounds fits inside the padded
// screen. Nearly coincident bounds land on MaxZoom.
func (v Viewport) Camera(width, height float64) Camera {
	if !isFinite(width) || width <= 0 {
		width = defaultScreenWidth
	}
	if !isFinite(height) || height <= 0 {
		height = defaultScreenHeight
	}
	maxZoom := clampZoom(v.MaxZoom, DefaultMaxZoom)
	pad := v.Padding.finite()

	world := Mercator{ZoomLevel: 0, TileSize: DefaultTileSize}
	sw := world.Project(v.Bounds.SW)
	ne := world.Project(v.Bounds.NE)

	dx := math.Abs(ne.X - sw.X)
	dy := math.Abs(ne.Y - sw.Y)

	availW := math.Max(minCameraAvailable, width-pad.Left-pad.Right)
	availH := math.Max(minCameraAvailable, height-pad.Top-pad.Bottom)

	zoom := maxZoom
	if dx > 0 || dy > 0 {
		scale := math.Inf(1)
		if dx > 0 {
			scale = availW / dx
		}
		if dy > 0 {
			scale = math.Min(scale, availH/dy)
		}
		zoom = math.Min(maxZoom, math.Log2(scale))
	}
	zoom = math.Max(minCameraZoom, zoom)

	// Asymmetric padding shifts the center by half the difference.
	mid := Point{X: (sw.X + ne.X) / 2, Y: (sw.Y + ne.Y) / 2}
	at := Mercator{ZoomLevel: zoom, TileSize: DefaultTileSize}
	c := at.Project(world.Unproject(mid))
	c.X -= (pad.Left - pad.Right) / 2
	c.Y -= (pad.Top - pad.Bottom) / 2

	return Camera{Center: at.Unproject(c), Zoom: zoom, Pitch: v.Pitch}
}
