package archive_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/webarc/archive"
	"github.com/hazyhaar/webarc/dbopen"
	"github.com/hazyhaar/webarc/fetch"
	"github.com/hazyhaar/webarc/history"
	"github.com/hazyhaar/webarc/snapshot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newSite serves a page with one stylesheet and one image; the
// stylesheet references a second image.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><link rel="stylesheet" href="style.css"></head>`+
			`<body><img src="logo.png"></body></html>`)
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, `body { background: url("bg.png"); }`)
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/bg.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G', 'b', 'g'})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func loadSnapshot(t *testing.T, client *fetch.Client, pageURL string) *snapshot.Snapshot {
	t.Helper()
	ctx := context.Background()
	res, err := client.Get(ctx, pageURL)
	if err != nil {
		t.Fatalf("fetch root: %v", err)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := snapshot.Parse(res.Body, u)
	if err != nil {
		t.Fatalf("snapshot.Parse: %v", err)
	}
	return snap
}

func TestRun_WritesArchive(t *testing.T) {
	// WHAT: an end-to-end run against a local server produces an MHTML
	// file containing the page, both directly referenced assets, and
	// the asset discovered inside the stylesheet.
	srv := newSite(t)
	client := fetch.New(fetch.Config{})
	snap := loadSnapshot(t, client, srv.URL+"/page.html")

	dest := filepath.Join(t.TempDir(), "page.mhtml")
	req := archive.NewRequest(client, testLogger())
	if err := req.Run(context.Background(), snap, dest); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"Content-Type: multipart/related",
		"Content-Location: " + srv.URL + "/page.html",
		"Content-Location: " + srv.URL + "/style.css",
		"Content-Location: " + srv.URL + "/logo.png",
		"Content-Location: " + srv.URL + "/bg.png",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("archive missing %q", want)
		}
	}

	if got := len(req.Results()); got != 3 {
		t.Errorf("Results: got %d assets, want 3", got)
	}
}

func TestRun_SecondUseFails(t *testing.T) {
	// WHAT: a Request is single-use; the reuse check fires before any
	// I/O, so the destination of the second call is never created.
	srv := newSite(t)
	client := fetch.New(fetch.Config{})
	snap := loadSnapshot(t, client, srv.URL+"/page.html")

	dir := t.TempDir()
	req := archive.NewRequest(client, testLogger())
	if err := req.Run(context.Background(), snap, filepath.Join(dir, "first.mhtml")); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := filepath.Join(dir, "second.mhtml")
	err := req.Run(context.Background(), snap, second)
	if !errors.Is(err, archive.ErrReused) {
		t.Fatalf("second Run error = %v, want ErrReused", err)
	}
	if _, statErr := os.Stat(second); !os.IsNotExist(statErr) {
		t.Error("second destination was created despite reuse error")
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	srv := newSite(t)
	client := fetch.New(fetch.Config{})
	snap := loadSnapshot(t, client, srv.URL+"/page.html")

	db := dbopen.OpenMemory(t)
	store, err := history.New(db)
	if err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "page.mhtml")
	req := archive.NewRequest(client, testLogger(), archive.WithHistory(store))
	if err := req.Run(context.Background(), snap, dest); err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := store.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	r := runs[0]
	if !r.Success || r.Assets != 3 || r.Failures != 0 {
		t.Errorf("run = %+v, want success with 3 assets, 0 failures", r)
	}
	if r.Destination != dest {
		t.Errorf("Destination = %q, want %q", r.Destination, dest)
	}

	assets, err := store.Assets(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(assets) != 3 {
		t.Errorf("got %d asset rows, want 3", len(assets))
	}
}

func TestRun_FailedAssetsBecomePlaceholders(t *testing.T) {
	// WHAT: a 404 asset still yields a written archive; the run
	// succeeds and the failure shows up in the results.
	mux := http.NewServeMux()
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><img src="missing.png"></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := fetch.New(fetch.Config{})
	snap := loadSnapshot(t, client, srv.URL+"/page.html")

	dest := filepath.Join(t.TempDir(), "page.mhtml")
	req := archive.NewRequest(client, testLogger())
	if err := req.Run(context.Background(), snap, dest); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if !strings.Contains(string(data), "Content-Location: "+srv.URL+"/missing.png") {
		t.Error("placeholder part for missing asset not found")
	}

	results := req.Results()
	if len(results) != 1 || results[0].Outcome.String() != "error" {
		t.Errorf("results = %+v, want one error outcome", results)
	}
}

func TestFileTarget_NoPartialFileOnWriteError(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.mhtml")

	boom := errors.New("boom")
	target := &archive.FileTarget{Path: dest}
	err := target.Save(func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Save error = %v, want boom", err)
	}

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination exists after failed write")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileTarget_AtomicWrite(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.mhtml")
	target := &archive.FileTarget{Path: dest}
	err := target.Save(func(w io.Writer) error {
		_, err := io.WriteString(w, "content")
		return err
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q", data)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	const doc = `
fetch:
  max_bytes: 1048576
  user_agent: test-agent
history_path: /tmp/history.db
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := archive.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Fetch.UserAgent != "test-agent" {
		t.Errorf("UserAgent = %q", cfg.Fetch.UserAgent)
	}
	if cfg.Fetch.MaxBytes != 1048576 {
		t.Errorf("MaxBytes = %d", cfg.Fetch.MaxBytes)
	}
	if cfg.HistoryPath != "/tmp/history.db" {
		t.Errorf("HistoryPath = %q", cfg.HistoryPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default = %q, want info", cfg.LogLevel)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := archive.LoadConfigFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
