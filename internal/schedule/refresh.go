package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"calview/internal/ics"
	appLog "calview/internal/log"
)

// ErrRefreshInProgress is returned when a refresh is requested while
// another one is still running.
var ErrRefreshInProgress = errors.New("schedule: refresh already in progress")

// Fetcher retrieves raw ICS payloads. *ics.Fetcher satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Options controls which sources are loaded and how far occurrences are
// expanded.
type Options struct {
	Sources      []ics.Source
	Location     *time.Location
	HorizonDays  int
	BackfillDays int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Refresher runs the fetch, parse and expand pipeline and publishes the
// result to a Store.
type Refresher struct {
	store   *Store
	fetcher Fetcher
	opts    Options

	mu sync.Mutex
}

func NewRefresher(store *Store, fetcher Fetcher, opts Options) *Refresher {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Refresher{store: store, fetcher: fetcher, opts: opts}
}

// Store returns the store this refresher publishes to.
func (r *Refresher) Store() *Store { return r.store }

// Refresh loads every source once and swaps in a new snapshot.
//
// Per-source failures do not abort the refresh; they are joined into the
// returned error alongside the new snapshot. When every source fails the
// previous snapshot stays live and is returned with the error.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	if !r.mu.TryLock() {
		appLog.Info("refresh skipped; previous run still active")
		return r.store.Load(), ErrRefreshInProgress
	}
	defer r.mu.Unlock()

	started := time.Now()
	results, fetchErrs := r.fetcher.FetchAll(ctx, r.opts.Sources)
	errs := append([]error(nil), fetchErrs...)

	parsed := make([]ics.ParsedEvent, 0)
	sourceIDs := make([]string, 0, len(results))
	for _, res := range results {
		evs, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		parsed = append(parsed, evs...)
		sourceIDs = append(sourceIDs, res.Source.ID)
	}

	if len(sourceIDs) == 0 && len(errs) > 0 {
		err := errors.Join(errs...)
		appLog.Error("refresh failed; keeping previous snapshot", err, "sources", len(r.opts.Sources))
		return r.store.Load(), err
	}

	now := r.opts.Now().In(r.opts.Location)
	expanded, err := ics.Expand(parsed, ics.ExpandConfig{
		DisplayLocation: r.opts.Location,
		RangeStart:      now.AddDate(0, 0, -r.opts.BackfillDays),
		RangeEnd:        now.AddDate(0, 0, r.opts.HorizonDays),
	})
	if err != nil {
		return r.store.Load(), fmt.Errorf("schedule: expand: %w", err)
	}

	slices.Sort(sourceIDs)
	snap := r.store.Swap(&Snapshot{
		Events:    expanded.Events,
		FetchedAt: now,
		Sources:   sourceIDs,
	})

	appLog.Info("refresh completed",
		"generation", snap.Generation,
		"events", len(snap.Events),
		"sources_ok", len(sourceIDs),
		"sources_failed", len(errs),
		"truncated", len(expanded.TruncatedEvents),
		"elapsed", time.Since(started).String(),
	)
	return snap, errors.Join(errs...)
}
