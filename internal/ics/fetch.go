package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appLog "calview/internal/log"
)

// Source is one calendar feed.
type Source struct {
	// ID identifies the source in logs and events (config ICS ID).
	ID string
	// URL is http(s)://, file://, or a plain local path.
	URL string
}

// LocalPath returns the filesystem path of a local source and true, or
// "" and false for remote (http/https) sources.
func (s Source) LocalPath() (string, bool) {
	u := strings.TrimSpace(s.URL)
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return "", false
	case strings.HasPrefix(lower, "file://"):
		return u[len("file://"):], true
	default:
		return u, u != ""
	}
}

// FetchResult is the payload obtained for one source.
type FetchResult struct {
	Source Source
	Body   []byte
	// FromCache is set when Body is the stored copy: the server answered
	// 304, or the request failed and a previous body was available.
	FromCache bool
}

// Fetcher loads feeds. Remote feeds use conditional GETs against a disk
// cache and fall back to the cached body on failure; local feeds are read
// straight from disk.
type Fetcher struct {
	client  *http.Client
	cache   diskCache
	limiter *rate.Limiter
}

// NewFetcher creates a Fetcher caching remote feeds under cacheDir.
// ratePerSec bounds outgoing HTTP requests across all sources; <= 0 means
// unlimited.
func NewFetcher(cacheDir string, ratePerSec float64) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./cache/ics-cache"
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: 15 * time.Second},
		cache:   diskCache{root: cacheDir},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// FetchAll fetches sources in order. Results hold only the sources that
// produced a body; each failure is logged and returned wrapped with its
// source ID.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	var errs []error

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("ics: fetch %s: %w", src.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne loads a single source.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}
	if path, ok := src.LocalPath(); ok {
		body, err := os.ReadFile(path)
		if err != nil {
			return FetchResult{}, err
		}
		appLog.Debug("ics read local file", "id", src.ID, "path", path, "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil
	}
	return f.fetchRemote(ctx, src)
}

func (f *Fetcher) fetchRemote(ctx context.Context, src Source) (FetchResult, error) {
	meta, cached := f.cache.load(src.URL)

	// fallback serves the cached body in place of err when there is one.
	fallback := func(err error, reason string) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, err
		}
		appLog.Warn("ics fetch "+reason+"; using cached body", "err", err.Error(), "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return FetchResult{}, err
	}
	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err, "network error")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(err, "read error")
		}
		fresh := validators{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.cache.store(fresh, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	default:
		return fallback(errors.New(resp.Status), "non-OK status")
	}
}

// redactURL keeps only scheme and host: private feed URLs carry their
// secret in the path or query string.
//
//	https://example.com/private/abc.ics?token=1 -> https://example.com/...(redacted)
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
