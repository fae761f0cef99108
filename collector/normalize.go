package collector

import (
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// normalizeRef produces the dedup key for a reference: lowercased
// scheme and host, fragment stripped. Query strings are preserved
// byte-for-byte since they address distinct resources. Two references
// with the same normalized form are the same logical asset and are
// fetched at most once per run.
func normalizeRef(u *url.URL) string {
	v := *u
	v.Scheme = strings.ToLower(v.Scheme)
	v.Host = strings.ToLower(v.Host)
	v.Fragment = ""
	v.RawFragment = ""
	return v.String()
}

// encodedLocation renders a URL as an ASCII-safe Content-Location
// value. Internationalized hostnames are punycoded; non-ASCII bytes in
// the components url.URL.String emits verbatim (query, fragment) are
// percent-encoded. The MHTML writer refuses non-ASCII headers, so this
// has to happen before the URL becomes a part header.
func encodedLocation(u *url.URL) string {
	s := u.String()
	if isASCII(s) {
		return s
	}
	if !isASCII(u.Host) {
		if host, err := idna.ToASCII(u.Hostname()); err == nil {
			v := *u
			if port := u.Port(); port != "" {
				v.Host = host + ":" + port
			} else {
				v.Host = host
			}
			s = v.String()
		}
	}
	return escapeNonASCII(s)
}

// escapeNonASCII percent-encodes every byte outside 7-bit ASCII. The
// string is already a serialized URL, so ASCII stays untouched.
func escapeNonASCII(s string) string {
	if isASCII(s) {
		return s
	}
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 0x7f {
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// isCSS reports whether a fetched asset should be scanned for nested
// references: declared type text/css, or a .css path when the server
// sent no usable type.
func isCSS(contentType string, u *url.URL) bool {
	if media, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = media
	}
	if strings.EqualFold(strings.TrimSpace(contentType), "text/css") {
		return true
	}
	return strings.HasSuffix(u.Path, ".css")
}

// forceASCII replaces any byte outside 7-bit ASCII with '?'. Official
// content-type headers are ASCII anyway; anything else cannot be
// represented in a MIME header.
func forceASCII(s string) string {
	if isASCII(s) {
		return s
	}
	b := []byte(s)
	for i := range b {
		if b[i] > 0x7f {
			b[i] = '?'
		}
	}
	return string(b)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}
