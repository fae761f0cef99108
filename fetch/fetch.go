// Package fetch implements the HTTP download capability behind the
// archive collector: a synchronous Get for the root page and an
// asynchronous Fetch whose handle reports completion through callbacks
// or a poll, matching the collector's zombie-tolerant contract.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hazyhaar/webarc/collector"
)

// Config configures the fetcher.
type Config struct {
	// Timeout is the per-request HTTP timeout. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
	// MaxBytes caps the response body size. Default: 10MB.
	MaxBytes int64 `yaml:"max_bytes"`
	// UserAgent sent with requests.
	UserAgent string `yaml:"user_agent"`
	// MaxRedirects caps redirect chains. Default: 5.
	MaxRedirects int `yaml:"max_redirects"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.UserAgent == "" {
		c.UserAgent = "webarc/1.0"
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
}

// Result is the outcome of a synchronous Get.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string // raw Content-Type header value
	Header      http.Header
}

// Client performs HTTP requests.
type Client struct {
	client *http.Client
	config Config
}

// New creates a Client with a capped redirect chain.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= cfg.MaxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Get retrieves a URL synchronously. Used for the root page, where
// there is nothing to overlap the transfer with.
func (c *Client) Get(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return &Result{StatusCode: resp.StatusCode}, fmt.Errorf("fetch: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
	}, nil
}

// Fetch starts an asynchronous download of u and returns immediately.
// The transfer runs on its own goroutine; completion is reported
// through the handle. Context cancellation maps to the cancelled
// outcome, every other failure (including HTTP error status) to the
// error outcome.
func (c *Client) Fetch(ctx context.Context, u *url.URL) collector.Handle {
	h := newHandle()
	go func() {
		res, err := c.Get(ctx, u.String())
		switch {
		case err == nil:
			h.complete(collector.OutcomeSuccess, res.Body, res.ContentType, res.Header)
		case ctx.Err() != nil:
			h.complete(collector.OutcomeCancelled, nil, "", nil)
		default:
			h.complete(collector.OutcomeError, nil, "", nil)
		}
	}()
	return h
}
