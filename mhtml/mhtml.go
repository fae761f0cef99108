// Package mhtml serializes a web page and its fetched sub-resources into
// a single MHTML document (RFC 2045 multipart/related).
//
// The output is deterministic apart from the boundary token: parts other
// than the root are emitted sorted lexicographically by location, lines
// end in CRLF, and bodies are wrapped at 76 columns. Header values must
// be 7-bit ASCII; the writer refuses non-ASCII values instead of
// silently mangling them.
package mhtml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
)

// ErrNonASCIIHeader is returned by WriteTo when a content location or
// content type contains bytes outside 7-bit ASCII. MIME header fields
// are ASCII-only; anything else would corrupt the archive.
var ErrNonASCIIHeader = errors.New("mhtml: non-ASCII header value")

// ErrFileNotFound is returned by RemoveFile for a location that was
// never added.
var ErrFileNotFound = errors.New("mhtml: no file at location")

// file is one stored part: a resource at a location with its content
// type and transfer encoding.
type file struct {
	location    string
	content     []byte
	contentType string
	encoding    Encoding
}

// Writer collects a root document plus named sub-resources and
// serializes them as one multipart/related document.
type Writer struct {
	rootContent  []byte
	rootLocation string
	rootType     string
	files        map[string]file
	boundary     string
}

// Option configures a Writer.
type Option func(*Writer)

// WithBoundary pins the multipart boundary token. Used for reproducible
// output in tests; the default is a random token per document.
func WithBoundary(b string) Option {
	return func(w *Writer) { w.boundary = b }
}

// NewWriter creates a Writer for the given root resource. The root is
// always emitted first and always quoted-printable. rootContentType may
// be empty, in which case the root part carries no Content-Type header.
func NewWriter(rootContent []byte, rootLocation, rootContentType string, opts ...Option) *Writer {
	w := &Writer{
		rootContent:  rootContent,
		rootLocation: rootLocation,
		rootType:     rootContentType,
		files:        make(map[string]file),
	}
	for _, o := range opts {
		o(w)
	}
	if w.boundary == "" {
		// Random UUID makes payload collision unlikely, not impossible.
		// Good enough in practice; MHTML consumers do the same.
		w.boundary = "---=_qute-" + uuid.New().String()
	}
	return w
}

// AddFile registers the resource at location. Adding the same location
// twice overwrites the earlier entry (last write wins).
func (w *Writer) AddFile(location string, content []byte, contentType string, enc Encoding) {
	w.files[location] = file{
		location:    location,
		content:     content,
		contentType: contentType,
		encoding:    enc,
	}
}

// RemoveFile drops the resource at location. Returns ErrFileNotFound if
// the location was never added.
func (w *Writer) RemoveFile(location string) error {
	if _, ok := w.files[location]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, location)
	}
	delete(w.files, location)
	return nil
}

// Boundary returns the boundary token in use.
func (w *Writer) Boundary() string {
	return w.boundary
}

// WriteTo serializes the full document to out. All header values are
// validated up front: on ErrNonASCIIHeader nothing is written. The
// whole document is assembled in memory and written in one call, so a
// write error from out never leaves a syntactically valid prefix.
func (w *Writer) WriteTo(out io.Writer) error {
	if err := w.validateHeaders(); err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Content-Type: multipart/related; boundary=%q\r\n", w.boundary)
	buf.WriteString("MIME-Version: 1.0\r\n\r\n")
	fmt.Fprintf(&buf, "--%s\r\n", w.boundary)

	root := file{
		location:    w.rootLocation,
		content:     w.rootContent,
		contentType: w.rootType,
		encoding:    QuotedPrintable,
	}
	writePart(&buf, root)

	locations := make([]string, 0, len(w.files))
	for loc := range w.files {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	for _, loc := range locations {
		fmt.Fprintf(&buf, "\r\n--%s\r\n", w.boundary)
		writePart(&buf, w.files[loc])
	}

	fmt.Fprintf(&buf, "\r\n--%s--\r\n", w.boundary)

	if _, err := out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("mhtml: write: %w", err)
	}
	return nil
}

// writePart emits one part: headers, blank line, encoded body. The body
// carries no trailing CRLF of its own (base64 excepted, see encode.go);
// the caller separates it from the following boundary line.
func writePart(buf *bytes.Buffer, f file) {
	fmt.Fprintf(buf, "Content-Location: %s\r\n", f.location)
	buf.WriteString("MIME-Version: 1.0\r\n")
	if f.contentType != "" {
		fmt.Fprintf(buf, "Content-Type: %s\r\n", f.contentType)
	}
	fmt.Fprintf(buf, "Content-Transfer-Encoding: %s\r\n\r\n", f.encoding)
	buf.Write(encodeBody(f.content, f.encoding))
}

func (w *Writer) validateHeaders() error {
	values := []string{w.rootLocation, w.rootType}
	for _, f := range w.files {
		values = append(values, f.location, f.contentType)
	}
	for _, v := range values {
		if !isASCII(v) {
			return fmt.Errorf("%w: %q", ErrNonASCIIHeader, v)
		}
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}
