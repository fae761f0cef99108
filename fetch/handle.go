package fetch

import (
	"net/http"
	"sync"

	"github.com/hazyhaar/webarc/collector"
)

// handle implements collector.Handle for one in-flight download.
//
// Completion and callback registration race by design: if the transfer
// finishes first, the callbacks are never invoked and the completed
// state is left for the collector's zombie drain to pick up via Done.
type handle struct {
	mu          sync.Mutex
	done        bool
	outcome     collector.Outcome
	body        []byte
	contentType string
	header      http.Header
	onSuccess   func(body []byte, contentType string, header http.Header)
	onError     func()
	onCancelled func()
}

func newHandle() *handle {
	return &handle{}
}

func (h *handle) OnSuccess(fn func(body []byte, contentType string, header http.Header)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSuccess = fn
}

func (h *handle) OnError(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = fn
}

func (h *handle) OnCancelled(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCancelled = fn
}

func (h *handle) Done() (collector.Outcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.done
}

func (h *handle) Payload() ([]byte, string, http.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.body, h.contentType, h.header
}

// complete records the terminal state and fires whichever callback was
// registered before completion. Runs on the transfer goroutine, never
// inside a registration call, so the collector may hold its own lock
// while registering without deadlocking.
func (h *handle) complete(outcome collector.Outcome, body []byte, contentType string, header http.Header) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	h.outcome = outcome
	h.body = body
	h.contentType = contentType
	h.header = header
	onSuccess, onError, onCancelled := h.onSuccess, h.onError, h.onCancelled
	h.mu.Unlock()

	switch outcome {
	case collector.OutcomeSuccess:
		if onSuccess != nil {
			onSuccess(body, contentType, header)
		}
	case collector.OutcomeCancelled:
		if onCancelled != nil {
			onCancelled()
		}
	default:
		if onError != nil {
			onError()
		}
	}
}
