package snapshot

import (
	"net/url"
	"testing"
)

func parsePage(t *testing.T, page, base string) *Snapshot {
	t.Helper()
	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	s, err := Parse([]byte(page), u)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

func refStrings(s *Snapshot) []string {
	var out []string
	for _, r := range s.References() {
		out = append(out, r.String())
	}
	return out
}

func TestParse_ElementKinds(t *testing.T) {
	// WHAT: link/script/img attributes, <style> bodies and inline
	// style attributes all yield references, resolved against the page.
	page := `<html><head>
		<link rel="stylesheet" href="main.css">
		<script src="/js/app.js"></script>
		<style>body { background: url(bg.png) }</style>
	</head><body>
		<img src="logo.png">
		<div style="background: url(inline.png)">x</div>
	</body></html>`
	s := parsePage(t, page, "http://example.com/dir/page.html")

	want := map[string]bool{
		"http://example.com/dir/main.css":   true,
		"http://example.com/js/app.js":      true,
		"http://example.com/dir/bg.png":     true,
		"http://example.com/dir/logo.png":   true,
		"http://example.com/dir/inline.png": true,
	}
	got := refStrings(s)
	if len(got) != len(want) {
		t.Fatalf("references = %v, want %d entries", got, len(want))
	}
	for _, r := range got {
		if !want[r] {
			t.Errorf("unexpected reference %s", r)
		}
	}
}

func TestParse_RelFilter(t *testing.T) {
	// WHAT: link elements keep only stylesheet/icon rels; an unset rel
	// passes.
	// WHY: rel="preconnect", "canonical" etc. are not page assets.
	page := `<html><head>
		<link rel="stylesheet" href="keep1.css">
		<link rel="ICON" href="keep2.ico">
		<link rel="apple-touch-icon" href="drop1.png">
		<link rel="canonical" href="drop2.html">
		<link href="keep3.css">
	</head></html>`
	s := parsePage(t, page, "http://example.com/")

	got := refStrings(s)
	want := []string{
		"http://example.com/keep1.css",
		"http://example.com/keep2.ico",
		"http://example.com/keep3.css",
	}
	if len(got) != len(want) {
		t.Fatalf("references = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reference %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParse_StyleTypeFilter(t *testing.T) {
	// WHAT: <style> with a non-CSS type is ignored.
	page := `<html><head>
		<style type="text/less">body { background: url(skip.png) }</style>
		<style type="TEXT/CSS">body { background: url(keep.png) }</style>
	</head></html>`
	s := parsePage(t, page, "http://example.com/")

	got := refStrings(s)
	if len(got) != 1 || got[0] != "http://example.com/keep.png" {
		t.Errorf("references = %v, want [http://example.com/keep.png]", got)
	}
}

func TestParse_InlineScriptSkipped(t *testing.T) {
	// WHAT: A script with neither src nor href yields no candidate.
	page := `<html><body><script>var x = 1;</script></body></html>`
	s := parsePage(t, page, "http://example.com/")
	if got := refStrings(s); got != nil {
		t.Errorf("references = %v, want none", got)
	}
}

func TestReferences_DuplicatesPreserved(t *testing.T) {
	// WHAT: The same asset referenced twice appears twice.
	// WHY: Dedup is the collector's job; the snapshot only reports.
	page := `<html><body>
		<img src="a.png"><img src="a.png">
	</body></html>`
	s := parsePage(t, page, "http://example.com/")
	if got := refStrings(s); len(got) != 2 {
		t.Errorf("references = %v, want 2 entries", got)
	}
}

func TestParse_MalformedHTML(t *testing.T) {
	// WHAT: Truncated/invalid markup still parses (html5 error
	// recovery) and usable references survive.
	page := `<html><head><link rel=stylesheet href=main.css><body><img src=x.png`
	s := parsePage(t, page, "http://example.com/")
	got := refStrings(s)
	if len(got) != 2 {
		t.Errorf("references = %v, want 2 entries", got)
	}
}
