// Package snapshot turns a rendered page's HTML into the list of
// candidate sub-resource references the collector should fetch:
// stylesheet/icon links, scripts, images, <style> bodies and inline
// style attributes.
package snapshot

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/webarc/cssref"
)

// defaultContentType is assumed for the root document. Pages arrive
// here as serialized HTML, so this is safe even without a header.
const defaultContentType = `text/html; charset="UTF-8"`

// Candidate is one possible sub-resource reference found in the page:
// either a URL-bearing attribute or a blob of CSS to scan.
type Candidate struct {
	Tag         string
	URL         string // raw attribute value, possibly relative
	InlineStyle string // <style> body or style= attribute value
}

// Snapshot is a parsed page plus everything in it that may reference a
// sub-resource.
type Snapshot struct {
	RootHTML    []byte
	RootURL     *url.URL
	ContentType string
	Candidates  []Candidate
}

// Parse walks the page's HTML and collects candidates. The walk covers
// link, script and img elements (link subject to the rel filter),
// <style> elements whose type is CSS, and any element carrying an
// inline style attribute.
func Parse(rootHTML []byte, rootURL *url.URL) (*Snapshot, error) {
	doc, err := html.Parse(bytes.NewReader(rootHTML))
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse html: %w", err)
	}

	s := &Snapshot{
		RootHTML:    rootHTML,
		RootURL:     rootURL,
		ContentType: defaultContentType,
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			s.collectElement(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return s, nil
}

// References resolves all candidates against the page URL (or, for
// style blobs, scans them first) and returns the result in discovery
// order. Duplicates are preserved; the collector dedups.
func (s *Snapshot) References() []*url.URL {
	var refs []*url.URL
	for _, c := range s.Candidates {
		if c.URL != "" {
			if ref := s.resolve(c.URL); ref != nil {
				refs = append(refs, ref)
			}
		}
		if c.InlineStyle != "" {
			for _, raw := range cssref.Scan(c.InlineStyle) {
				if ref := s.resolve(raw); ref != nil {
					refs = append(refs, ref)
				}
			}
		}
	}
	return refs
}

func (s *Snapshot) resolve(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return s.RootURL.ResolveReference(ref)
}

func (s *Snapshot) collectElement(n *html.Node) {
	switch n.DataAtom {
	case atom.Link, atom.Script, atom.Img:
		// Sites set whatever rel=... they want; only stylesheets and
		// icons matter for the archive.
		if relWanted(n) {
			if u := srcOrHref(n); u != "" {
				s.Candidates = append(s.Candidates, Candidate{Tag: n.Data, URL: u})
			}
		}
	case atom.Style:
		// type defaults to text/css when missing.
		if t := getAttr(n, "type"); t == "" || strings.EqualFold(t, "text/css") {
			if body := textContent(n); body != "" {
				s.Candidates = append(s.Candidates, Candidate{Tag: n.Data, InlineStyle: body})
			}
		}
	}

	if style := getAttr(n, "style"); style != "" {
		s.Candidates = append(s.Candidates, Candidate{Tag: n.Data, InlineStyle: style})
	}
}

// relWanted reports whether an element's rel attribute fits: unset, or
// containing "stylesheet" or "icon".
func relWanted(n *html.Node) bool {
	if !hasAttr(n, "rel") {
		return true
	}
	for _, rel := range strings.Fields(getAttr(n, "rel")) {
		switch strings.ToLower(rel) {
		case "stylesheet", "icon":
			return true
		}
	}
	return false
}

// srcOrHref returns the element's src attribute, falling back to href.
// Empty for inline scripts and the like.
func srcOrHref(n *html.Node) string {
	if v := getAttr(n, "src"); v != "" {
		return v
	}
	return getAttr(n, "href")
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
