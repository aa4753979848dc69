package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calview/internal/config"
	"calview/internal/model"
	"calview/internal/schedule"
)

type stubRefresher struct {
	store *schedule.Store
	err   error
	swap  bool
}

func (r *stubRefresher) Refresh(context.Context) (*schedule.Snapshot, error) {
	if r.swap {
		return r.store.Swap(&schedule.Snapshot{}), r.err
	}
	return r.store.Load(), r.err
}

func testEvents() []model.Event {
	d := model.MustDate("2025-09-01")
	return []model.Event{
		{Title: "Home", StartDate: d, Start: model.At(8, 0), End: model.At(8, 30), Longitude: model.Float(-79.40), Latitude: model.Float(43.66)},
		{Title: "Calculus", StartDate: d, Start: model.At(9, 0), End: model.At(10, 0), Longitude: model.Float(-79.3972), Latitude: model.Float(43.6598)},
		{Title: "Lab", StartDate: d, Start: model.At(9, 30), End: model.At(11, 0), Longitude: model.Float(-79.3972), Latitude: model.Float(43.6598)},
		{Title: "Call", StartDate: d, Start: model.At(13, 0), End: model.At(13, 30)},
		{Title: "Reading", StartDate: model.MustDate("2025-09-03")},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *schedule.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := schedule.NewStore()
	store.Swap(&schedule.Snapshot{Events: testEvents(), Sources: []string{"test"}})
	s := NewServer(cfg, store, &stubRefresher{store: store})
	s.now = func() time.Time { return time.Date(2025, 9, 2, 12, 0, 0, 0, time.UTC) }
	return s, store
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestEventsFilter(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"", http.StatusOK, 5},
		{"?from=2025-09-02", http.StatusOK, 1},
		{"?to=2025-09-01", http.StatusOK, 4},
		{"?from=2025-09-02&to=2025-09-02", http.StatusOK, 0},
		{"?from=yesterday", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := get(t, s.Handler(), "/api/events"+tt.query)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}
			resp := decode[eventsResponse](t, rec)
			if len(resp.Events) != tt.count {
				t.Fatalf("events = %d, want %d", len(resp.Events), tt.count)
			}
			if resp.Generation != 1 || resp.DisplayTimeZone != "UTC" {
				t.Fatalf("resp = %+v", resp)
			}
		})
	}
}

func TestWeek(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/api/week?date=2025-09-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[weekResponse](t, rec)

	w := resp.Week
	if w.Start != model.MustDate("2025-08-31") {
		t.Fatalf("week start = %s, want Sunday 2025-08-31", w.Start)
	}
	if len(w.Days) != 7 || len(w.Days[1].Events) != 4 {
		t.Fatalf("days = %d, monday events = %d", len(w.Days), len(w.Days[1].Events))
	}
	if !w.Days[2].IsToday || !w.Days[1].IsSelected {
		t.Fatal("today/selected flags not set")
	}
	if len(w.Independent) != 1 || w.Independent[0].Title != "Reading" {
		t.Fatalf("independent = %+v", w.Independent)
	}
	if len(resp.HourLabels) != len(w.Slots) || resp.HourLabels[0] != "7 AM" {
		t.Fatalf("labels = %v", resp.HourLabels)
	}
	for _, p := range w.Days[1].Events {
		if p.Event.Title == "Calculus" && p.Slot.TotalColumns != 2 {
			t.Fatalf("calculus slot = %+v", p.Slot)
		}
	}
}

func TestWeekMondayStartAnd24h(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, func(c *config.Config) {
		c.WeekStart = "monday"
		c.TimeFormat = "24h"
	})
	resp := decode[weekResponse](t, get(t, s.Handler(), "/api/week?date=2025-09-03"))
	if resp.Week.Start != model.MustDate("2025-09-01") {
		t.Fatalf("week start = %s", resp.Week.Start)
	}
	if resp.HourLabels[0] != "07:00" {
		t.Fatalf("labels = %v", resp.HourLabels)
	}
}

func TestBadDate(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	for _, path := range []string{"/api/week", "/api/markers", "/week.svg"} {
		rec := get(t, s.Handler(), path+"?date=2025-13-01")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s code = %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Fatalf("%s body = %s", path, rec.Body.String())
		}
	}
}

func TestMarkers(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/api/markers?date=2025-09-01&zoom=14&width=800&height=600")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[markersResponse](t, rec)

	ps := resp.Markers.Placements
	if len(ps) != 3 {
		t.Fatalf("placements = %d, want 3", len(ps))
	}
	if !ps[0].Home || ps[0].Label != 0 {
		t.Fatalf("first placement should be unlabeled Home: %+v", ps[0])
	}
	if ps[1].Label != 1 || ps[2].Label != 2 {
		t.Fatalf("labels = %d, %d", ps[1].Label, ps[2].Label)
	}
	if ps[1].Coordinates != ps[1].Original || ps[2].Coordinates == ps[2].Original {
		t.Fatal("second co-located marker should be offset, first should not")
	}
	if resp.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", resp.Skipped)
	}
	if resp.Camera == nil || resp.Camera.Zoom > 15 || resp.Camera.Zoom <= 0 {
		t.Fatalf("camera = %+v", resp.Camera)
	}
	if resp.Markers.Viewport.Padding.Top != 100 {
		t.Fatalf("padding = %+v", resp.Markers.Viewport.Padding)
	}
}

func TestMarkersEmptyDay(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	resp := decode[markersResponse](t, get(t, s.Handler(), "/api/markers?date=2025-09-05"))
	if len(resp.Markers.Placements) != 0 || resp.Camera != nil || resp.Markers.Viewport != nil {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestWeekSVG(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	rec := get(t, s.Handler(), "/week.svg?date=2025-09-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Calculus") {
		t.Fatal("svg missing event")
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	tests := []struct {
		name string
		ref  func(*schedule.Store) Refresher
		code int
	}{
		{"ok", func(s *schedule.Store) Refresher { return &stubRefresher{store: s, swap: true} }, http.StatusOK},
		{"partial", func(s *schedule.Store) Refresher { return &stubRefresher{store: s, swap: true, err: boom} }, http.StatusOK},
		{"failed", func(s *schedule.Store) Refresher { return &stubRefresher{store: s, err: boom} }, http.StatusBadGateway},
		{"busy", func(s *schedule.Store) Refresher {
			return &stubRefresher{store: s, err: schedule.ErrRefreshInProgress}
		}, http.StatusConflict},
		{"none", func(*schedule.Store) Refresher { return nil }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestServer(t, nil)
			s.refresher = tt.ref(store)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
		})
	}
}

func TestRefreshRequiresPost(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	if rec := get(t, s.Handler(), "/api/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	})
	h := s.Handler()

	if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health should skip auth, got %d", rec.Code)
	}
	if rec := get(t, h, "/api/events"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with credentials: %d", rec.Code)
	}
}

func TestSecureCompare(t *testing.T) {
	t.Parallel()
	if !secureCompare("abc", "abc") || secureCompare("abc", "abd") || secureCompare("abc", "ab") {
		t.Fatal("secureCompare mismatch")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestMarkersNonFiniteQuery(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	for _, q := range []string{
		"zoom=NaN",
		"zoom=Inf",
		"zoom=-Inf",
		"zoom=1e6",
		"width=NaN&height=Inf",
	} {
		t.Run(q, func(t *testing.T) {
			rec := get(t, s.Handler(), "/api/markers?date=2025-09-01&"+q)
			if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
				t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
			}
			resp := decode[markersResponse](t, rec)
			if len(resp.Markers.Placements) != 3 || resp.Camera == nil {
				t.Fatalf("resp = %+v", resp)
			}
			if z := resp.Markers.Zoom; z <= 0 || z > 24 {
				t.Fatalf("zoom = %v", z)
			}
		})
	}
}

func TestParseFloatDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want float64
	}{
		{"", 7},
		{"12.5", 12.5},
		{"abc", 7},
		{"NaN", 7},
		{"Inf", 7},
		{"-Infinity", 7},
	}
	for _, tt := range tests {
		if got := parseFloatDefault(tt.in, 7); got != tt.want {
			t.Fatalf("parseFloatDefault(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
