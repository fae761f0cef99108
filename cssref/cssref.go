// Package cssref extracts asset references from CSS text.
//
// Stylesheets pull in further resources through @import statements and
// url(...) values; both must be collected when a page is archived so the
// nested assets end up in the output too. The scanner is deliberately
// forgiving: it matches what it can and never fails on malformed CSS.
package cssref

import (
	"regexp"
	"strings"
)

// refPattern matches every form a CSS asset reference can take:
//
//	@import 'x'   @import "x"
//	url(x)        url('x')     url("x")
//
// @import url(x) is covered by the url(...) alternative. A single
// combined pattern keeps matches in textual order, which per-form
// patterns scanned one after another would not.
var refPattern = regexp.MustCompile(
	`(?i)@import\s+(?:"([^"]+)"|'([^']+)')` +
		`|url\(\s*(?:"([^"]*)"|'([^']*)'|([^"')][^)]*?))?\s*\)`)

// Scan returns all asset URLs referenced in the given CSS text, as
// written (relative to the stylesheet, not resolved), in textual order.
// Duplicates are preserved; dedup is the collector's job. url() with no
// argument yields nothing.
func Scan(css string) []string {
	var urls []string
	for _, m := range refPattern.FindAllStringSubmatch(css, -1) {
		for _, group := range m[1:] {
			if u := strings.TrimSpace(group); u != "" {
				urls = append(urls, u)
				break
			}
		}
	}
	return urls
}
