package mhtml

import (
	"bytes"
	"encoding/base64"
	"mime/quotedprintable"
	"strings"
)

// Encoding selects the MIME transfer encoding for a part body.
type Encoding int

const (
	// QuotedPrintable keeps mostly-ASCII text readable in the archive
	// and escapes everything else as =XX sequences.
	QuotedPrintable Encoding = iota
	// Base64 is used for binary content.
	Base64
)

// String returns the Content-Transfer-Encoding header value.
func (e Encoding) String() string {
	if e == Base64 {
		return "base64"
	}
	return "quoted-printable"
}

// EncodingFor derives the transfer encoding from a content type:
// text/* is quoted-printable, everything else base64. An empty content
// type counts as binary.
func EncodingFor(contentType string) Encoding {
	if strings.HasPrefix(strings.ToLower(contentType), "text/") {
		return QuotedPrintable
	}
	return Base64
}

// maxLineLen is the RFC 2045 limit for encoded body lines.
const maxLineLen = 76

// encodeBody encodes content per the given transfer encoding. Both
// encodings use CRLF line endings and wrap at 76 columns. A
// quoted-printable body ends without a trailing line break unless the
// content itself ends with one; a base64 body always ends with CRLF, so
// a blank line separates it from the following boundary.
func encodeBody(content []byte, enc Encoding) []byte {
	if enc == Base64 {
		return encodeBase64(content)
	}
	return encodeQuotedPrintable(content)
}

// encodeQuotedPrintable escapes per RFC 2045: 8-bit bytes and '=' become
// =XX, a space or tab at the end of a line is escaped so it survives
// line-oriented transports, and overlong lines get soft breaks ("=").
func encodeQuotedPrintable(content []byte) []byte {
	var buf bytes.Buffer
	w := quotedprintable.NewWriter(&buf)
	w.Write(content)
	w.Close()
	return buf.Bytes()
}

func encodeBase64(content []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(content)
	var buf bytes.Buffer
	for len(encoded) > maxLineLen {
		buf.WriteString(encoded[:maxLineLen])
		buf.WriteString("\r\n")
		encoded = encoded[maxLineLen:]
	}
	if len(encoded) > 0 {
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}
