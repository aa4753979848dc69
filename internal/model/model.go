package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event is a single dated schedule entry as consumed by the layout engines.
// Values are treated as immutable; nothing in the engines writes to them.
type Event struct {
	SourceID string `json:"source_id,omitempty"` // calendar source ID (e.g., config ICS ID)
	UID      string `json:"uid,omitempty"`       // iCalendar UID

	Title     string `json:"title"`
	StartDate Date   `json:"start_date"`

	// Start / End are times of day on StartDate. Both present and equal
	// means "no fixed schedule".
	Start *Clock `json:"start"`
	End   *Clock `json:"end"`

	Location string `json:"location,omitempty"`

	// Longitude / Latitude are nil when the event cannot be placed on a map.
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
}

// HasCoordinates reports whether both longitude and latitude are present.
func (e Event) HasCoordinates() bool {
	return e.Longitude != nil && e.Latitude != nil
}

// Key identifies an event instance: the same title at a different time or
// place is a different key.
func (e Event) Key() string {
	return strings.Join([]string{
		e.Title,
		e.StartDate.String(),
		clockString(e.Start),
		floatString(e.Longitude),
		floatString(e.Latitude),
	}, "::")
}

// StartString returns Start as "HH:MM", or "" when absent.
func (e Event) StartString() string {
	return clockString(e.Start)
}

func clockString(c *Clock) string {
	if c == nil {
		return ""
	}
	return c.String()
}

func floatString(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// Float returns a pointer to v. Handy for building coordinates in literals.
func Float(v float64) *float64 {
	return &v
}

// Clock is a time of day at minute precision, counted from midnight.
type Clock int

// MinutesPerDay bounds a valid Clock: 0 <= c < MinutesPerDay.
const MinutesPerDay = 24 * 60

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// At returns a pointer to NewClock(hour, minute).
func At(hour, minute int) *Clock {
	c := NewClock(hour, minute)
	return &c
}

// ParseClock accepts "HH:MM" or "HH:MM:SS"; seconds are dropped.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time of day")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
	}
	return NewClock(h, m), nil
}

// ClockOf extracts the time of day of t in t's own location.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

func (c Clock) Hour() int    { return int(c) / 60 }
func (c Clock) Minute() int  { return int(c) % 60 }
func (c Clock) Minutes() int { return int(c) }

// String formats as zero-padded "HH:MM", so lexical order equals time order.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Date is a calendar day without a time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals in tests and fixtures.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.In(time.UTC).Format(dateLayout)
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.In(time.UTC).AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.In(time.UTC).Weekday()
}

func (d Date) Before(o Date) bool {
	return d.In(time.UTC).Before(o.In(time.UTC))
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
