// File: internal/browser/watcher.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrNotReady indicates the watcher has no live session context to attach to,
// or WaitFor was called before Enable.
var ErrNotReady = errors.New("browser: response stream not ready")

// ErrPredicateFailure indicates the caller's predicate itself faulted while
// examining a record.
var ErrPredicateFailure = errors.New("browser: predicate failed")

// WaitState classifies the result of a WaitFor call. Timeout is not an error:
// it means nothing matched, as opposed to something going wrong.
type WaitState int

const (
	StateSuccess WaitState = iota
	StateTimeout
	StateFailed
)

func (s WaitState) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// Outcome is the typed result of a wait. Record is populated only on success;
// Err only on failure.
type Outcome struct {
	State  WaitState
	Record Record
	Err    error
}

// Record is one observed network response, built with default values for any
// field the event failed to populate.
type Record struct {
	URL      string
	Status   int64
	MimeType string
}

// Predicate examines a single record. It runs inside a recover guard: a panic
// is contained and surfaced as ErrPredicateFailure.
type Predicate func(Record) bool

// SubmissionConfirmed matches a successful booking submission response.
func SubmissionConfirmed(rec Record) bool {
	return rec.Status >= 200 && rec.Status < 300 &&
		strings.Contains(rec.URL, "book-appointment")
}

// ResponseWatcher collects network responses from a browser session and lets
// callers wait for one matching a predicate. A malformed event can never
// abort a wait: records are assembled nil-safely and predicate faults are
// contained per record.
type ResponseWatcher struct {
	sessionCtx context.Context
	logger     *zap.Logger

	// listen and enableNetwork are swapped out by tests that have no live
	// chromedp context.
	listen        func(ctx context.Context, fn func(ev interface{}))
	enableNetwork func(ctx context.Context) error

	mu      sync.Mutex
	records []Record
	enabled bool
}

// NewResponseWatcher creates a watcher bound to the given session context.
// The context may be nil; Enable reports ErrNotReady in that case instead of
// faulting.
func NewResponseWatcher(sessionCtx context.Context, logger *zap.Logger) *ResponseWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseWatcher{
		sessionCtx: sessionCtx,
		logger:     logger.Named("response_watcher"),
		listen:     chromedp.ListenTarget,
		enableNetwork: func(ctx context.Context) error {
			return chromedp.Run(ctx, network.Enable())
		},
	}
}

// Enable installs the response listener. It verifies the session handle
// before touching the driver and reports ErrNotReady rather than faulting
// when there is nothing to attach to. Enabling twice is a no-op.
func (w *ResponseWatcher) Enable() error {
	if w.sessionCtx == nil {
		return ErrNotReady
	}

	w.mu.Lock()
	if w.enabled {
		w.mu.Unlock()
		return nil
	}
	w.enabled = true
	w.mu.Unlock()

	w.listen(w.sessionCtx, w.handleEvent)
	if err := w.enableNetwork(w.sessionCtx); err != nil {
		w.mu.Lock()
		w.enabled = false
		w.mu.Unlock()
		return fmt.Errorf("enable network domain: %w", err)
	}
	return nil
}

// handleEvent ingests response events. Every field access is nil-guarded so
// one partially populated event cannot take the listener down.
func (w *ResponseWatcher) handleEvent(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok {
		return
	}

	var rec Record
	if resp != nil && resp.Response != nil {
		rec.URL = resp.Response.URL
		rec.Status = resp.Response.Status
		rec.MimeType = resp.Response.MimeType
	}

	w.mu.Lock()
	w.records = append(w.records, rec)
	w.mu.Unlock()
}

// Records returns a copy of everything observed so far.
func (w *ResponseWatcher) Records() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Record, len(w.records))
	copy(out, w.records)
	return out
}

// WaitFor blocks until a record matches the predicate, the timeout elapses,
// or the context is cancelled. Timeout yields StateTimeout, not an error.
func (w *ResponseWatcher) WaitFor(ctx context.Context, pred Predicate, timeout time.Duration) Outcome {
	w.mu.Lock()
	enabled := w.enabled
	w.mu.Unlock()
	if !enabled {
		return Outcome{State: StateFailed, Err: ErrNotReady}
	}
	if pred == nil {
		return Outcome{State: StateFailed, Err: fmt.Errorf("%w: nil predicate", ErrPredicateFailure)}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	scanned := 0
	for {
		rec, matched, err := w.scan(&scanned, pred)
		if err != nil {
			return Outcome{State: StateFailed, Err: err}
		}
		if matched {
			return Outcome{State: StateSuccess, Record: rec}
		}

		select {
		case <-ctx.Done():
			return Outcome{State: StateFailed, Err: ctx.Err()}
		case <-deadline.C:
			return Outcome{State: StateTimeout}
		case <-tick.C:
		}
	}
}

// scan evaluates the predicate against records not yet examined.
func (w *ResponseWatcher) scan(scanned *int, pred Predicate) (Record, bool, error) {
	w.mu.Lock()
	pending := w.records[*scanned:]
	*scanned = len(w.records)
	w.mu.Unlock()

	for _, rec := range pending {
		matched, err := w.apply(pred, rec)
		if err != nil {
			return Record{}, false, err
		}
		if matched {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

func (w *ResponseWatcher) apply(pred Predicate, rec Record) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("predicate panicked", zap.Any("panic", r), zap.String("url", rec.URL))
			matched = false
			err = fmt.Errorf("%w: %v", ErrPredicateFailure, r)
		}
	}()
	return pred(rec), nil
}
