package collector

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Outcome is the terminal result of one fetch.
type Outcome int

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeError
	OutcomeCancelled
)

// String returns a short label for logging and persistence.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Handle is one in-flight fetch as seen by the collector.
//
// Callbacks fire at most once each, and only for completions that
// happen after registration; implementations must never invoke them
// synchronously from inside the registration call or from inside
// Fetcher.Fetch. A fetch that completes before its callbacks are
// registered is observable through Done and Payload instead — the
// collector polls for such zombies after every dispatch wave.
type Handle interface {
	OnSuccess(func(body []byte, contentType string, header http.Header))
	OnError(func())
	OnCancelled(func())

	// Done reports the terminal outcome, if the fetch has completed.
	Done() (Outcome, bool)
	// Payload returns the fetched data. Valid only after Done has
	// reported OutcomeSuccess.
	Payload() (body []byte, contentType string, header http.Header)
}

// Fetcher is the injected download capability. Fetch must not block on
// the transfer; it returns immediately with a Handle that completes
// asynchronously.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) Handle
}

// Target is where the finished archive is persisted.
type Target interface {
	// Save invokes write with the destination sink. Implementations
	// decide atomicity (e.g. temp file + rename); write is called at
	// most once.
	Save(write func(io.Writer) error) error
}

// WriterTarget adapts a plain io.Writer as a Target.
type WriterTarget struct {
	W io.Writer
}

func (t WriterTarget) Save(write func(io.Writer) error) error {
	return write(t.W)
}
