// Package render draws a laid-out week as a standalone SVG document.
package render

import (
	"fmt"
	"io"
	"strings"

	"calview/internal/layout"
)

// Default canvas metrics, in pixels.
const (
	DefaultDayWidth     = 140.0
	DefaultGutterWidth  = 64.0
	DefaultHeaderHeight = 44.0
	DefaultFontFamily   = "Helvetica, Arial, sans-serif"

	independentLine = 20.0
	margin          = 12.0
)

// Options controls canvas size and labels. Zero fields use defaults.
type Options struct {
	TimeFormat layout.TimeFormat
	// HourHeight must match the geometry the week was built with.
	HourHeight   float64
	DayWidth     float64
	GutterWidth  float64
	HeaderHeight float64
	FontFamily   string
	Background   string
}

func (o Options) normalized() Options {
	if o.TimeFormat == "" {
		o.TimeFormat = layout.Format12h
	}
	if o.HourHeight <= 0 {
		o.HourHeight = layout.DefaultHourHeight
	}
	if o.DayWidth <= 0 {
		o.DayWidth = DefaultDayWidth
	}
	if o.GutterWidth <= 0 {
		o.GutterWidth = DefaultGutterWidth
	}
	if o.HeaderHeight <= 0 {
		o.HeaderHeight = DefaultHeaderHeight
	}
	if o.FontFamily == "" {
		o.FontFamily = DefaultFontFamily
	}
	if o.Background == "" {
		o.Background = "#ffffff"
	}
	return o
}

// Size returns the canvas width and height for week.
func Size(week layout.Week, opts Options) (width, height float64) {
	o := opts.normalized()
	width = o.GutterWidth + float64(len(week.Days))*o.DayWidth
	height = o.HeaderHeight + float64(week.Window.Hours())*o.HourHeight
	if n := len(week.Independent); n > 0 {
		height += margin + float64(n+1)*independentLine
	}
	return width, height + margin
}

// WeekSVG renders week into an SVG document. The root element carries
// data-ready="true" so headless captures can wait on it.
func WeekSVG(week layout.Week, opts Options) string {
	o := opts.normalized()
	width, height := Size(week, o)
	gridTop := o.HeaderHeight
	gridBottom := gridTop + float64(week.Window.Hours())*o.HourHeight

	var svg strings.Builder
	fmt.Fprintf(&svg, `<?xml version="1.0" encoding="UTF-8"?>
<svg width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f" xmlns="http://www.w3.org/2000/svg" data-ready="true">
<rect width="100%%" height="100%%" fill="%s"/>
<defs>
<style>
.hour-label { font-family: %s; font-size: 11px; fill: #6b7280; }
.day-label { font-family: %s; font-size: 13px; font-weight: bold; fill: #111827; }
.today { fill: #2563eb; }
.event-title { font-family: %s; font-size: 12px; font-weight: bold; fill: #111827; }
.event-time { font-family: %s; font-size: 10px; fill: #374151; }
.independent { font-family: %s; font-size: 12px; fill: #111827; }
</style>
</defs>
`, width, height, width, height, o.Background,
		o.FontFamily, o.FontFamily, o.FontFamily, o.FontFamily, o.FontFamily)

	// Hour rows.
	for i, hour := range week.Slots {
		y := gridTop + float64(i)*o.HourHeight
		fmt.Fprintf(&svg, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#e5e7eb" stroke-width="1"/>`+"\n",
			o.GutterWidth, y, width, y)
		fmt.Fprintf(&svg, `<text class="hour-label" x="%.1f" y="%.1f" text-anchor="end">%s</text>`+"\n",
			o.GutterWidth-6, y+12, escapeXML(layout.FormatHour(hour, o.TimeFormat)))
	}
	fmt.Fprintf(&svg, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#e5e7eb" stroke-width="1"/>`+"\n",
		o.GutterWidth, gridBottom, width, gridBottom)

	for i, day := range week.Days {
		x := o.GutterWidth + float64(i)*o.DayWidth
		drawDay(&svg, day, x, gridTop, gridBottom, o)
	}

	if len(week.Independent) > 0 {
		y := gridBottom + margin + independentLine
		fmt.Fprintf(&svg, `<text class="day-label" x="%.1f" y="%.1f">No fixed schedule</text>`+"\n", margin, y-4)
		for _, ev := range week.Independent {
			y += independentLine
			fmt.Fprintf(&svg, `<rect x="%.1f" y="%.1f" width="10" height="10" rx="2" fill="%s"/>`+"\n",
				margin, y-13, layout.Color(ev))
			fmt.Fprintf(&svg, `<text class="independent" x="%.1f" y="%.1f">%s %s</text>`+"\n",
				margin+16, y-4, escapeXML(ev.StartDate.String()), escapeXML(ev.Title))
		}
	}

	svg.WriteString("</svg>\n")
	return svg.String()
}

// WriteWeekSVG writes WeekSVG(week, opts) to w.
func WriteWeekSVG(w io.Writer, week layout.Week, opts Options) error {
	_, err := io.WriteString(w, WeekSVG(week, opts))
	return err
}

func drawDay(svg *strings.Builder, day layout.Day, x, gridTop, gridBottom float64, o Options) {
	if day.IsToday {
		fmt.Fprintf(svg, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="#eff6ff"/>`+"\n",
			x, gridTop, o.DayWidth, gridBottom-gridTop)
	}
	fmt.Fprintf(svg, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#d1d5db" stroke-width="1"/>`+"\n",
		x, gridTop, x, gridBottom)

	class := "day-label"
	if day.IsToday {
		class += " today"
	}
	label := day.Date.Weekday().String()[:3] + " " + fmt.Sprint(day.Date.Day)
	fmt.Fprintf(svg, `<text class="%s" x="%.1f" y="%.1f" text-anchor="middle">%s</text>`+"\n",
		class, x+o.DayWidth/2, gridTop-14, escapeXML(label))

	for _, p := range day.Events {
		bx := x + p.Box.Left/100*o.DayWidth
		bw := p.Box.Width / 100 * o.DayWidth
		by := gridTop + p.Box.Top
		fmt.Fprintf(svg, `<g data-key="%s">`+"\n", escapeXML(p.Key))
		fmt.Fprintf(svg, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" rx="4" fill="%s" stroke="#9ca3af" stroke-width="0.5"/>`+"\n",
			bx, by, bw, p.Box.Height, layout.Color(p.Event))
		fmt.Fprintf(svg, `<text class="event-title" x="%.1f" y="%.1f">%s</text>`+"\n",
			bx+4, by+14, escapeXML(p.Event.Title))
		if p.Box.Height >= 32 {
			fmt.Fprintf(svg, `<text class="event-time" x="%.1f" y="%.1f">%s</text>`+"\n",
				bx+4, by+27, escapeXML(layout.FormatRange(p.Event, o.TimeFormat)))
		}
		svg.WriteString("</g>\n")
	}
}

// escapeXML escapes the five XML special characters.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
