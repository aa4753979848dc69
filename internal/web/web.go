package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"calview/internal/config"
	"calview/internal/geo"
	"calview/internal/layout"
	appLog "calview/internal/log"
	"calview/internal/model"
	"calview/internal/render"
	"calview/internal/schedule"
)

// Refresher triggers an immediate reload of every source.
// *schedule.Refresher satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (*schedule.Snapshot, error)
}

// Server provides the HTTP API and the rendered week view over the live
// event snapshot.
type Server struct {
	cfg       *config.Config
	store     *schedule.Store
	refresher Refresher
	loc       *time.Location
	mux       *http.ServeMux

	// now is swapped in tests.
	now func() time.Time
}

// NewServer constructs a new Server. refresher may be nil, in which case
// POST /api/refresh answers 503.
func NewServer(cfg *config.Config, store *schedule.Store, refresher Refresher) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		refresher: refresher,
		loc:       resolveLocationOrLocal(cfg.Timezone),
		mux:       http.NewServeMux(),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calview", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe listens on cfg.Listen and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/markers", s.handleMarkers)
	s.mux.HandleFunc("GET /week.svg", s.handleWeekSVG)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Generation      uint64        `json:"generation"`
	FetchedAt       time.Time     `json:"fetched_at"`
	DisplayTimeZone string        `json:"display_timezone"`
	Sources         []string      `json:"sources"`
	Events          []model.Event `json:"events"`
}

// handleEvents returns the events of the current snapshot.
//
// GET /api/events?from=YYYY-MM-DD&to=YYYY-MM-DD
//   - from / to: optional inclusive date filter
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from, to model.Date
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = model.ParseDate(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = model.ParseDate(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
	}

	snap := s.store.Load()
	events := make([]model.Event, 0, len(snap.Events))
	for _, ev := range snap.Events {
		if !from.IsZero() && ev.StartDate.Before(from) {
			continue
		}
		if !to.IsZero() && to.Before(ev.StartDate) {
			continue
		}
		events = append(events, ev)
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Generation:      snap.Generation,
		FetchedAt:       snap.FetchedAt,
		DisplayTimeZone: s.loc.String(),
		Sources:         snap.Sources,
		Events:          events,
	})
}

// weekResponse is the JSON response shape for /api/week.
type weekResponse struct {
	Generation uint64            `json:"generation"`
	TimeFormat layout.TimeFormat `json:"time_format"`
	HourLabels []string          `json:"hour_labels"`
	Week       layout.Week       `json:"week"`
}

// handleWeek lays out the week containing ?date= (default today).
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	snap := s.store.Load()
	week := s.buildWeek(snap, date)

	format := s.timeFormat()
	labels := make([]string, 0, len(week.Slots))
	for _, h := range week.Slots {
		labels = append(labels, layout.FormatHour(h, format))
	}

	writeJSON(w, http.StatusOK, weekResponse{
		Generation: snap.Generation,
		TimeFormat: format,
		HourLabels: labels,
		Week:       week,
	})
}

// handleWeekSVG renders the week containing ?date= as an SVG image.
func (s *Server) handleWeekSVG(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	week := s.buildWeek(s.store.Load(), date)

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := render.WriteWeekSVG(w, week, render.Options{
		TimeFormat: s.timeFormat(),
		HourHeight: s.cfg.Grid.HourHeight,
	}); err != nil {
		appLog.Error("failed to write SVG response", err)
	}
}

// markersResponse is the JSON response shape for /api/markers.
type markersResponse struct {
	Generation uint64      `json:"generation"`
	Date       model.Date  `json:"date"`
	Markers    geo.Result  `json:"markers"`
	Camera     *geo.Camera `json:"camera,omitempty"`
	// Skipped counts events of the day that could not be placed.
	Skipped int `json:"skipped"`
}

// handleMarkers places the map markers for the events on ?date=.
//
// GET /api/markers?date=YYYY-MM-DD&zoom=14&width=1024&height=768
//   - zoom:         zoom level offsets are computed at (default config map.zoom)
//   - width/height: map size used to solve the fitted camera
func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	zoom := parseFloatDefault(q.Get("zoom"), s.cfg.Map.Zoom)
	width := parseFloatDefault(q.Get("width"), float64(s.cfg.Map.Width))
	height := parseFloatDefault(q.Get("height"), float64(s.cfg.Map.Height))

	snap := s.store.Load()
	day := snap.EventsOn(date)
	res := geo.Declutter(geo.BuildSegments(day), day, geo.NewMercator(zoom))

	resp := markersResponse{
		Generation: snap.Generation,
		Date:       date,
		Markers:    res,
	}
	for _, ev := range day {
		if !geo.Plottable(ev) {
			resp.Skipped++
		}
	}
	if resp.Skipped > 0 {
		appLog.Debug("events without coordinates left off the map", "date", date.String(), "count", resp.Skipped)
	}
	if res.Viewport != nil {
		res.Viewport.Configure(s.cfg.Map.Padding, s.cfg.Map.MaxZoom)
		cam := res.Viewport.Camera(width, height)
		resp.Camera = &cam
	}

	writeJSON(w, http.StatusOK, resp)
}

// refreshResponse is the JSON response shape for /api/refresh.
type refreshResponse struct {
	Generation uint64 `json:"generation"`
	Events     int    `json:"events"`
	Error      string `json:"error,omitempty"`
}

// handleRefresh reloads every source now. Partial failures still answer
// 200 with the error text; a total failure keeps the old snapshot and
// answers 502.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	prev := s.store.Load().Generation
	snap, err := s.refresher.Refresh(r.Context())
	if errors.Is(err, schedule.ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, "refresh already in progress")
		return
	}

	resp := refreshResponse{}
	if snap != nil {
		resp.Generation = snap.Generation
		resp.Events = len(snap.Events)
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if snap == nil || snap.Generation == prev {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) buildWeek(snap *schedule.Snapshot, date model.Date) layout.Week {
	return layout.BuildWeek(snap.Events, date, layout.WeekOptions{
		FirstDay: layout.ParseWeekday(s.cfg.WeekStart),
		Today:    model.DateOf(s.now().In(s.loc)),
		Geometry: layout.Geometry{
			HourHeight:     s.cfg.Grid.HourHeight,
			MinEventHeight: s.cfg.Grid.MinEventHeight,
			ColumnGutter:   s.cfg.Grid.ColumnGutter,
		},
	})
}

// dateParam reads ?date=, defaulting to today in the display timezone. It
// writes a 400 and returns false on a malformed value.
func (s *Server) dateParam(w http.ResponseWriter, r *http.Request) (model.Date, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return model.DateOf(s.now().In(s.loc)), true
	}
	d, err := model.ParseDate(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; want YYYY-MM-DD")
		return model.Date{}, false
	}
	return d, true
}

func (s *Server) timeFormat() layout.TimeFormat {
	if s.cfg.TimeFormat == string(layout.Format24h) {
		return layout.Format24h
	}
	return layout.Format12h
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
