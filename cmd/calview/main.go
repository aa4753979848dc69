package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calview/internal/capture"
	"calview/internal/config"
	"calview/internal/geo"
	"calview/internal/ics"
	"calview/internal/layout"
	appLog "calview/internal/log"
	"calview/internal/model"
	"calview/internal/schedule"
	"calview/internal/web"
)

const version = "0.3.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	date        string
	capturePath string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("calview starting", "version", version)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "timezone", conf.Timezone)
		loc = time.Local
	}

	date := model.DateOf(time.Now().In(loc))
	if flags.date != "" {
		if date, err = model.ParseDate(flags.date); err != nil {
			appLog.Error("invalid -date", err, "date", flags.date)
			os.Exit(2)
		}
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"backfill_days", conf.BackfillDays,
		"ics_count", len(conf.ICS),
		"once", flags.once,
		"date", date.String(),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	store := schedule.NewStore()
	refresher := schedule.NewRefresher(store, ics.NewFetcher(conf.CacheDir, conf.FetchRatePerSec), schedule.Options{
		Sources:      sources(conf),
		Location:     loc,
		HorizonDays:  conf.HorizonDays,
		BackfillDays: conf.BackfillDays,
	})
	if _, err := refresher.Refresh(ctx); err != nil {
		appLog.Error("initial refresh reported errors", err)
	}

	server := web.NewServer(conf, store, refresher)

	if flags.once {
		if err := runOnce(ctx, conf, store.Load(), date, server, flags.capturePath); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, conf, loc, refresher, server, date, flags.capturePath); err != nil {
		appLog.Error("calview stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("calview exiting")
}

// run starts the refresh schedule, the source watcher and the HTTP server,
// and blocks until ctx is canceled.
func run(ctx context.Context, conf *config.Config, loc *time.Location, refresher *schedule.Refresher, server *web.Server, date model.Date, capturePath string) error {
	c, err := refresher.Schedule(ctx, conf.RefreshCron, loc)
	if err != nil {
		return err
	}
	defer func() {
		<-c.Stop().Done()
	}()

	go func() {
		if err := refresher.Watch(ctx, schedule.DefaultDebounce); err != nil {
			appLog.Error("source watcher stopped", err)
		}
	}()

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return err
	}
	if capturePath != "" {
		go func() {
			if err := captureWeek(ctx, conf, ln.Addr().String(), date, capturePath); err != nil {
				appLog.Error("capture failed", err, "path", capturePath)
			}
		}()
	}
	return server.Serve(ctx, ln)
}

// onceOutput is what -once prints to stdout.
type onceOutput struct {
	Generation uint64      `json:"generation"`
	Week       layout.Week `json:"week"`
	Markers    geo.Result  `json:"markers"`
	Camera     *geo.Camera `json:"camera,omitempty"`
}

// runOnce prints the week and marker layout for date as JSON and, when
// capturePath is set, serves just long enough to capture the week grid.
func runOnce(ctx context.Context, conf *config.Config, snap *schedule.Snapshot, date model.Date, server *web.Server, capturePath string) error {
	week := layout.BuildWeek(snap.Events, date, layout.WeekOptions{
		FirstDay: layout.ParseWeekday(conf.WeekStart),
		Geometry: layout.Geometry{
			HourHeight:     conf.Grid.HourHeight,
			MinEventHeight: conf.Grid.MinEventHeight,
			ColumnGutter:   conf.Grid.ColumnGutter,
		},
	})

	day := snap.EventsOn(date)
	markers := geo.Declutter(geo.BuildSegments(day), day, geo.NewMercator(conf.Map.Zoom))
	out := onceOutput{Generation: snap.Generation, Week: week, Markers: markers}
	if markers.Viewport != nil {
		markers.Viewport.Configure(conf.Map.Padding, conf.Map.MaxZoom)
		cam := markers.Viewport.Camera(float64(conf.Map.Width), float64(conf.Map.Height))
		out.Camera = &cam
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if capturePath == "" {
		return nil
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- server.Serve(serveCtx, ln) }()

	capErr := captureWeek(ctx, conf, ln.Addr().String(), date, capturePath)
	stop()
	return errors.Join(capErr, <-done)
}

func captureWeek(ctx context.Context, conf *config.Config, addr string, date model.Date, path string) error {
	u := url.URL{
		Scheme:   "http",
		Host:     addr,
		Path:     "/week.svg",
		RawQuery: url.Values{"date": {date.String()}}.Encode(),
	}
	if conf.BasicAuth != nil && conf.BasicAuth.Username != "" {
		u.User = url.UserPassword(conf.BasicAuth.Username, conf.BasicAuth.Password)
	}
	return capture.WeekPNG(ctx, capture.Options{URL: u.String(), OutputPath: path})
}

// sources converts configured calendars into fetch sources. Entries
// without a URL are skipped; the ID falls back to the name, then the URL.
func sources(conf *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			id = c.Name
		}
		if id == "" {
			id = c.URL
		}
		out = append(out, ics.Source{ID: id, URL: c.URL})
	}
	return out
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./calview.yaml", "Path to config file (created with defaults if missing)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Refresh once, print week and marker layout as JSON, and exit")
	flag.StringVar(&cfg.date, "date", "", "Date to lay out, YYYY-MM-DD (default today)")
	flag.StringVar(&cfg.capturePath, "capture", "", "Write a PNG capture of the week grid to this path")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	return cfg
}
