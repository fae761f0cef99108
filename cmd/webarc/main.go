// Command webarc archives a web page and its assets into a single
// MHTML file.
//
// Usage:
//
//	webarc -url https://example.com/page.html              # archive to ./page.html.mhtml
//	webarc -url https://example.com/ -out example.mhtml    # explicit destination
//	webarc -config webarc.yaml -url https://example.com/   # run with config file
//	webarc -history webarc.db -recent 10                   # list recent runs and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/webarc/archive"
	"github.com/hazyhaar/webarc/dbopen"
	"github.com/hazyhaar/webarc/fetch"
	"github.com/hazyhaar/webarc/history"
	"github.com/hazyhaar/webarc/snapshot"
)

func main() {
	pageURL := flag.String("url", "", "URL of the page to archive")
	out := flag.String("out", "", "destination file (default: derived from the URL)")
	configPath := flag.String("config", "", "path to webarc.yaml config file")
	historyPath := flag.String("history", "", "path to SQLite history database")
	recent := flag.Int("recent", 0, "list the N most recent runs and exit")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg := &archive.Config{}
	if *configPath != "" {
		loaded, err := archive.LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "webarc: load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *historyPath != "" {
		cfg.HistoryPath = *historyPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *pageURL, *out, *recent); err != nil {
		logger.Error("webarc: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *archive.Config, pageURL, out string, recent int) error {
	var store *history.Store
	if cfg.HistoryPath != "" {
		db, err := dbopen.Open(cfg.HistoryPath, dbopen.WithMkdirAll())
		if err != nil {
			return err
		}
		defer db.Close()
		store, err = history.New(db)
		if err != nil {
			return err
		}
	}

	// One-shot: list recent runs.
	if recent > 0 {
		if store == nil {
			return fmt.Errorf("-recent requires -history or history_path in the config")
		}
		runs, err := store.Recent(ctx, recent)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if pageURL == "" {
		return fmt.Errorf("-url is required")
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if out == "" {
		out = defaultOutputName(u)
	}

	client := fetch.New(cfg.Fetch)

	logger.Info("fetching page", "url", pageURL)
	res, err := client.Get(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("fetch page: %w", err)
	}

	snap, err := snapshot.Parse(res.Body, u)
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}

	opts := []archive.Option{
		archive.WithProgress(func(fetched, discovered int) {
			logger.Info("progress", "fetched", fetched, "discovered", discovered)
		}),
	}
	if store != nil {
		opts = append(opts, archive.WithHistory(store))
	}

	req := archive.NewRequest(client, logger, opts...)
	return req.Run(ctx, snap, out)
}

// defaultOutputName derives a destination filename from the page URL:
// the last path segment plus ".mhtml", or the host when the path is
// empty.
func defaultOutputName(u *url.URL) string {
	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		base = u.Hostname()
	}
	base = strings.ReplaceAll(base, string(os.PathSeparator), "_")
	return base + ".mhtml"
}
