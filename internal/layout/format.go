package layout

import (
	"fmt"
	"hash/fnv"

	"calview/internal/model"
)

// TimeFormat selects 12-hour or 24-hour labels.
type TimeFormat string

const (
	Format12h TimeFormat = "12h"
	Format24h TimeFormat = "24h"
)

// FormatHour labels an hour row, e.g. "9 AM" or "09:00".
func FormatHour(hour int, f TimeFormat) string {
	if f == Format24h {
		return fmt.Sprintf("%02d:00", hour)
	}
	h, suffix := twelveHour(hour)
	return fmt.Sprintf("%d %s", h, suffix)
}

// FormatClock labels a time of day, e.g. "9:30 AM" or "09:30".
func FormatClock(c model.Clock, f TimeFormat) string {
	if f == Format24h {
		return c.String()
	}
	h, suffix := twelveHour(c.Hour())
	return fmt.Sprintf("%d:%02d %s", h, c.Minute(), suffix)
}

// FormatRange labels a timed event, e.g. "9:00 AM - 10:30 AM". Events that
// are not timed get "".
func FormatRange(ev model.Event, f TimeFormat) string {
	if Classify(ev) != Timed {
		return ""
	}
	return FormatClock(*ev.Start, f) + " - " + FormatClock(*ev.End, f)
}

func twelveHour(hour int) (int, string) {
	hour %= 24
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return h, suffix
}

// Palette is the set of event colors; ColorIndex picks one per title.
var Palette = []string{
	"#bae6fd", // sky
	"#bbf7d0", // green
	"#fde68a", // amber
	"#fecaca", // red
	"#ddd6fe", // violet
	"#fbcfe8", // pink
	"#c7d2fe", // indigo
	"#a5f3fc", // cyan
}

// ColorIndex maps a title to a stable Palette index so the same course
// keeps its color across days and weeks.
func ColorIndex(title string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(title))
	return int(h.Sum32() % uint32(len(Palette)))
}

// Color returns the Palette entry for ev's title.
func Color(ev model.Event) string {
	return Palette[ColorIndex(ev.Title)]
}
