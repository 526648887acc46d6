// Package fetcher retrieves the raw markup of the monitored page over HTTP.
package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/serrors"
	"time"
)

// Options configure the HTTP fetcher.
type Options struct {
	// Timeout bounds one fetch, including reading the body.
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
	// MaxBodyBytes caps the body; larger pages are rejected.
	MaxBodyBytes int64
}

// NewOptions maps the fetch settings out of the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Timeout:      cfg.Target.FetchTimeout,
		UserAgent:    cfg.Target.UserAgent,
		MaxBodyBytes: cfg.Target.MaxBodyBytes,
	}
}

// HTTPFetcher fetches pages with a plain GET. It is safe for concurrent use.
type HTTPFetcher struct {
	client  *http.Client
	options Options
}

// New creates an HTTPFetcher. A nil client gets a default one.
func New(client *http.Client, options Options) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if options.Timeout <= 0 {
		options.Timeout = 30 * time.Second
	}
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = 10 << 20
	}

	return &HTTPFetcher{client: client, options: options}
}

// Fetch returns the body of url. Every failure, including a non-2xx status
// and a timeout, is of kind serrors.ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.options.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", serrors.Wrap(serrors.ErrFetch, err, "could not create request")
	}
	if f.options.UserAgent != "" {
		req.Header.Set("User-Agent", f.options.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", wrapTransport(err, "could not send request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", serrors.With(serrors.ErrFetch, "unexpected status: %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, f.options.MaxBodyBytes+1))
	if err != nil {
		return "", wrapTransport(err, "could not read response body")
	}
	if int64(len(b)) > f.options.MaxBodyBytes {
		return "", serrors.With(serrors.ErrFetch, "response body exceeds %d bytes", f.options.MaxBodyBytes)
	}

	return string(b), nil
}

// wrapTransport tags err as a fetch error and, for deadlines, also as a timeout.
func wrapTransport(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return serrors.Wrap(serrors.ErrFetch, serrors.Wrap(serrors.ErrTimeout, err, "timed out"), "%s", msg)
	}

	return serrors.Wrap(serrors.ErrFetch, err, "%s", msg)
}
