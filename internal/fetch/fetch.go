// Package fetch pulls remote calendar feeds. It is a boundary adapter:
// any failure here means the merge for that cycle simply does not happen,
// and the source's archive is left untouched.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"icalarchive/internal/ics"
	appLog "icalarchive/internal/log"
	"icalarchive/internal/model"
)

// ErrNotModified reports a 304 response: the feed has not changed since
// the last fetch, so there is nothing to merge this cycle.
var ErrNotModified = errors.New("feed not modified")

// Result is one successful fetch: the raw feed body plus its parsed
// events keyed by raw UID.
type Result struct {
	Body   []byte
	Events map[string]model.ParsedEvent
}

// Fetcher fetches ICS feeds over HTTP with conditional requests
// (ETag / Last-Modified, kept in memory per URL).
type Fetcher struct {
	client *http.Client

	mu   sync.Mutex
	meta map[string]conditional
}

type conditional struct {
	etag         string
	lastModified string
}

// New creates a Fetcher whose requests are bounded by timeout.
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		meta:   make(map[string]conditional),
	}
}

// Fetch retrieves and parses one source's feed.
func (f *Fetcher) Fetch(ctx context.Context, source, url string) (Result, error) {
	if url == "" {
		return Result{}, errors.New("source URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}

	f.mu.Lock()
	cond := f.meta[url]
	f.mu.Unlock()
	if cond.etag != "" {
		req.Header.Set("If-None-Match", cond.etag)
	}
	if cond.lastModified != "" {
		req.Header.Set("If-Modified-Since", cond.lastModified)
	}

	appLog.Debug("feed fetch start", "source", source, "url", redactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return Result{}, readErr
		}

		events, parseErr := ics.Parse(source, body)
		if parseErr != nil {
			return Result{}, parseErr
		}

		f.mu.Lock()
		f.meta[url] = conditional{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
		}
		f.mu.Unlock()

		appLog.Info("feed fetch success", "source", source, "url", redactURL(url), "event_count", len(events))
		return Result{Body: body, Events: ics.EventMap(events)}, nil

	case http.StatusNotModified:
		appLog.Debug("feed not modified", "source", source, "url", redactURL(url))
		return Result{}, ErrNotModified

	default:
		return Result{}, errors.New(resp.Status)
	}
}

// redactURL hides path and query of a feed URL for logging; subscription
// URLs routinely embed access tokens.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
