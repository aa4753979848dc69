package render

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"calview/internal/layout"
	"calview/internal/model"
)

func sampleWeek() layout.Week {
	events := []model.Event{
		{Title: "R&D <lab>", StartDate: model.MustDate("2025-09-01"), Start: model.At(9, 0), End: model.At(10, 30)},
		{Title: "Seminar", StartDate: model.MustDate("2025-09-01"), Start: model.At(9, 30), End: model.At(11, 0)},
		{Title: "Gym", StartDate: model.MustDate("2025-09-03"), Start: model.At(18, 0), End: model.At(19, 0)},
		{Title: "Reading", StartDate: model.MustDate("2025-09-04")},
	}
	return layout.BuildWeek(events, model.MustDate("2025-09-01"), layout.WeekOptions{
		Today: model.MustDate("2025-09-03"),
	})
}

func TestWeekSVGIsWellFormed(t *testing.T) {
	t.Parallel()
	out := WeekSVG(sampleWeek(), Options{})

	dec := xml.NewDecoder(strings.NewReader(out))
	groups := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("invalid XML: %v\n%s", err, out)
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "g" {
			groups++
		}
	}
	if groups != 3 {
		t.Fatalf("event groups = %d, want 3", groups)
	}
}

func TestWeekSVGContent(t *testing.T) {
	t.Parallel()
	out := WeekSVG(sampleWeek(), Options{TimeFormat: layout.Format24h})

	for _, want := range []string{
		`data-ready="true"`,
		"R&amp;D &lt;lab&gt;",
		">09:00<",
		">Mon 1<",
		"No fixed schedule",
		"2025-09-04 Reading",
		"09:00 - 10:30",
		`day-label today`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "<lab>") {
		t.Error("title was not escaped")
	}
}

func TestSize(t *testing.T) {
	t.Parallel()
	week := sampleWeek()
	w, h := Size(week, Options{})
	if w != DefaultGutterWidth+7*DefaultDayWidth {
		t.Fatalf("width = %v", w)
	}
	grid := float64(week.Window.Hours()) * layout.DefaultHourHeight
	want := DefaultHeaderHeight + grid + margin + 2*independentLine + margin
	if h != want {
		t.Fatalf("height = %v, want %v", h, want)
	}
}

func TestWriteWeekSVG(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	week := layout.BuildWeek(nil, model.MustDate("2025-09-01"), layout.WeekOptions{})
	if err := WriteWeekSVG(&buf, week, Options{}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "</svg>\n") {
		t.Fatal("document not closed")
	}
	if strings.Contains(buf.String(), "No fixed schedule") {
		t.Fatal("empty week should have no independent list")
	}
}

func TestEscapeXML(t *testing.T) {
	t.Parallel()
	if got := escapeXML(`a&b<c>"d'`); got != "a&amp;b&lt;c&gt;&quot;d&apos;" {
		t.Fatalf("escapeXML = %q", got)
	}
}
