// Package collector drives one page-archival run: it fetches every
// referenced sub-resource exactly once through an injected asynchronous
// fetch capability, discovers further references inside fetched CSS,
// tolerates out-of-order and racing completions, and serializes the
// result as an MHTML archive when the last fetch settles.
//
// A Collector is single-use and request-scoped; nothing is shared
// between runs.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"unicode/utf8"

	"github.com/hazyhaar/webarc/cssref"
	"github.com/hazyhaar/webarc/mhtml"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("collector: already started")

// AssetResult records how one asset fetch ended.
type AssetResult struct {
	Location string
	Outcome  Outcome
	Size     int
}

// pendingFetch is one dispatched, unresolved reference.
type pendingFetch struct {
	u      *url.URL
	loc    string
	handle Handle
}

// Collector coordinates the fan-out/fan-in of asset fetches for one
// archival run.
type Collector struct {
	fetcher  Fetcher
	target   Target
	logger   *slog.Logger
	progress func(fetched, discovered int)

	mu       sync.Mutex
	ctx      context.Context // run context, set by Start, used for nested dispatches
	writer   *mhtml.Writer
	seen     map[string]bool         // every normalized URL ever dispatched (plus the root)
	pending  map[string]pendingFetch // dispatched but unresolved
	results  []AssetResult
	fetched  int
	started  bool
	finished bool
	err      error
	done     chan struct{}
}

// Option configures a Collector.
type Option func(*Collector)

// WithProgress registers an advisory progress callback, invoked as
// "fetched of discovered assets settled". The callback runs with the
// collector's lock held and must not call back into the collector.
func WithProgress(fn func(fetched, discovered int)) Option {
	return func(c *Collector) { c.progress = fn }
}

// New creates a Collector that fetches through fetcher and persists the
// finished archive through target.
func New(fetcher Fetcher, target Target, logger *slog.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		fetcher: fetcher,
		target:  target,
		logger:  logger,
		seen:    make(map[string]bool),
		pending: make(map[string]pendingFetch),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start seeds the run with the root document and its candidate
// references, dispatches a fetch for each unique http(s) URL, and
// drains any fetches that completed before their callbacks were wired
// up. If nothing ends up pending the archive is finalized immediately;
// otherwise completion is driven by fetch notifications. Start never
// blocks on network transfers.
func (c *Collector) Start(ctx context.Context, rootContent []byte, rootLocation *url.URL, rootContentType string, refs []*url.URL) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx = ctx

	c.writer = mhtml.NewWriter(rootContent, encodedLocation(rootLocation), rootContentType)
	// The root itself counts as seen so a self-reference is not fetched.
	c.seen[normalizeRef(rootLocation)] = true

	for _, ref := range refs {
		c.dispatch(ref)
	}

	// Fetches may have completed before their callbacks were
	// registered; without this drain such a run would stall forever.
	c.collectZombies()
	c.maybeFinish()
	return nil
}

// Wait blocks until the run reaches its terminal state and returns the
// run-level error, if any. Per-asset fetch failures are absorbed into
// empty placeholder parts and never surface here.
func (c *Collector) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the per-asset outcomes. Valid after Wait returns.
func (c *Collector) Results() []AssetResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

// dispatch starts a fetch for u unless its normalized form was already
// seen. Caller holds c.mu.
func (c *Collector) dispatch(u *url.URL) {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	key := normalizeRef(u)
	if c.seen[key] {
		return
	}
	c.seen[key] = true

	loc := encodedLocation(u)
	c.logger.Debug("loading asset", "url", loc)

	h := c.fetcher.Fetch(c.ctx, u)
	c.pending[key] = pendingFetch{u: u, loc: loc, handle: h}

	h.OnSuccess(func(body []byte, contentType string, _ http.Header) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.finishFetch(key, body, contentType)
		c.maybeFinish()
	})
	h.OnError(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.failFetch(key, OutcomeError)
		c.maybeFinish()
	})
	h.OnCancelled(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.failFetch(key, OutcomeCancelled)
		c.maybeFinish()
	})
}

// finishFetch stores a successfully fetched asset and, for CSS, feeds
// its content back through the reference scanner to dispatch nested
// assets. Tolerates references already settled by the zombie drain.
// Caller holds c.mu.
func (c *Collector) finishFetch(key string, body []byte, contentType string) {
	pf, ok := c.pending[key]
	if !ok {
		// Raced with the zombie drain; nothing left to do.
		c.logger.Debug("download already settled", "key", key)
		return
	}
	delete(c.pending, key)
	c.fetched++

	if isCSS(contentType, pf.u) {
		for _, raw := range cssref.Scan(c.cssText(body, pf.loc)) {
			ref, err := url.Parse(raw)
			if err != nil {
				c.logger.Debug("unparseable CSS reference", "url", raw, "stylesheet", pf.loc)
				continue
			}
			// Nested references are relative to the stylesheet, not
			// the page.
			c.dispatch(pf.u.ResolveReference(ref))
		}
		c.collectZombies()
	}

	c.writer.AddFile(pf.loc, body, forceASCII(contentType), mhtml.EncodingFor(contentType))
	c.results = append(c.results, AssetResult{Location: pf.loc, Outcome: OutcomeSuccess, Size: len(body)})
	c.notifyProgress()
}

// failFetch stores an empty placeholder for a failed or cancelled
// fetch, so the archive still references the asset. Caller holds c.mu.
func (c *Collector) failFetch(key string, outcome Outcome) {
	pf, ok := c.pending[key]
	if !ok {
		c.logger.Debug("download already settled", "key", key)
		return
	}
	delete(c.pending, key)
	c.fetched++

	c.logger.Debug("asset fetch failed, embedding placeholder",
		"url", pf.loc, "outcome", outcome.String())
	c.writer.AddFile(pf.loc, nil, "", mhtml.QuotedPrintable)
	c.results = append(c.results, AssetResult{Location: pf.loc, Outcome: outcome})
	c.notifyProgress()
}

// collectZombies settles fetches that completed before their callbacks
// were registered. Safe to call when nothing is done; callable after
// every dispatch wave. Caller holds c.mu.
func (c *Collector) collectZombies() {
	var zombies []string
	for key, pf := range c.pending {
		if _, done := pf.handle.Done(); done {
			zombies = append(zombies, key)
		}
	}
	if len(zombies) == 0 {
		return
	}
	c.logger.Debug("settling zombie downloads", "count", len(zombies))
	for _, key := range zombies {
		pf, ok := c.pending[key]
		if !ok {
			// Settled by a nested drain triggered above.
			continue
		}
		outcome, _ := pf.handle.Done()
		if outcome == OutcomeSuccess {
			body, contentType, _ := pf.handle.Payload()
			c.finishFetch(key, body, contentType)
		} else {
			c.failFetch(key, outcome)
		}
	}
}

// maybeFinish finalizes the archive the first time nothing is pending.
// The finished flag makes late duplicate notifications no-ops. Caller
// holds c.mu.
func (c *Collector) maybeFinish() {
	if c.finished || len(c.pending) > 0 {
		return
	}
	c.finished = true
	c.logger.Debug("all assets settled, writing archive", "assets", c.fetched)

	if err := c.target.Save(c.writer.WriteTo); err != nil {
		c.err = fmt.Errorf("collector: write archive: %w", err)
		c.logger.Error("archive write failed", "error", err)
	}
	close(c.done)
}

// cssText decodes stylesheet bytes for scanning. Invalid UTF-8 is kept
// as-is with a warning: a slightly garbled nested-asset list beats
// aborting the archive, and the stored bytes are untouched either way.
func (c *Collector) cssText(body []byte, loc string) string {
	if !utf8.Valid(body) {
		c.logger.Warn("invalid UTF-8 data in stylesheet", "url", loc)
	}
	return string(body)
}

func (c *Collector) notifyProgress() {
	if c.progress != nil {
		// Discovered count excludes the root document itself.
		c.progress(c.fetched, len(c.seen)-1)
	}
}
