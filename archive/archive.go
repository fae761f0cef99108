// Package archive ties the pieces of a page-archival run together: it
// takes a parsed page snapshot, drives the asset collector over an
// asynchronous fetcher, and persists the finished MHTML file atomically.
//
// A Request is single-use. Create one per page:
//
//	req := archive.NewRequest(client, logger)
//	err := req.Run(ctx, snap, "page.mhtml")
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/webarc/collector"
	"github.com/hazyhaar/webarc/history"
	"github.com/hazyhaar/webarc/snapshot"
)

// ErrReused is returned when Run is called on a Request that has
// already run. The check happens before any I/O.
var ErrReused = errors.New("archive: request already used")

// Request archives one page snapshot to one destination file.
type Request struct {
	fetcher  collector.Fetcher
	logger   *slog.Logger
	store    *history.Store
	progress func(fetched, discovered int)

	used    bool
	results []collector.AssetResult
}

// Option configures a Request.
type Option func(*Request)

// WithHistory records the run in the given store after it settles.
// Recording failures are logged, never fatal to the run.
func WithHistory(store *history.Store) Option {
	return func(r *Request) { r.store = store }
}

// WithProgress forwards the collector's progress callback.
func WithProgress(fn func(fetched, discovered int)) Option {
	return func(r *Request) { r.progress = fn }
}

// NewRequest creates a single-use archival request.
func NewRequest(fetcher collector.Fetcher, logger *slog.Logger, opts ...Option) *Request {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Request{fetcher: fetcher, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run archives snap to dest and blocks until the archive is written or
// the context is cancelled. Per-asset fetch failures become empty
// placeholder parts; only run-level failures (archive write, context)
// surface as errors.
func (r *Request) Run(ctx context.Context, snap *snapshot.Snapshot, dest string) error {
	if r.used {
		return ErrReused
	}
	r.used = true

	start := time.Now()
	r.logger.Info("archiving page", "url", snap.RootURL.String(), "dest", dest)

	var copts []collector.Option
	if r.progress != nil {
		copts = append(copts, collector.WithProgress(r.progress))
	}
	c := collector.New(r.fetcher, &FileTarget{Path: dest}, r.logger, copts...)

	if err := c.Start(ctx, snap.RootHTML, snap.RootURL, snap.ContentType, snap.References()); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	runErr := c.Wait(ctx)
	r.results = c.Results()

	r.record(snap, dest, time.Since(start), runErr)

	if runErr != nil {
		return fmt.Errorf("archive: %w", runErr)
	}
	r.logger.Info("archive written", "dest", dest,
		"assets", len(r.results), "elapsed", time.Since(start))
	return nil
}

// Results returns the per-asset outcomes. Valid after Run returns.
func (r *Request) Results() []collector.AssetResult {
	return r.results
}

func (r *Request) record(snap *snapshot.Snapshot, dest string, elapsed time.Duration, runErr error) {
	if r.store == nil {
		return
	}

	failures := 0
	for _, res := range r.results {
		if res.Outcome != collector.OutcomeSuccess {
			failures++
		}
	}
	run := history.Run{
		RootURL:     snap.RootURL.String(),
		Destination: dest,
		Assets:      len(r.results),
		Failures:    failures,
		Duration:    elapsed,
		Success:     runErr == nil,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	// History writes get their own short deadline so a locked database
	// cannot hold the archival result hostage.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.store.RecordRun(ctx, run, r.results); err != nil {
		r.logger.Warn("failed to record archive run", "error", err)
	}
}
