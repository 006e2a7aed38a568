// File: internal/browser/watcher_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newStubbedWatcher wires a watcher to a plain context with the chromedp
// calls stubbed out and returns the captured listener callback.
func newStubbedWatcher(t *testing.T, enableErr error) (*ResponseWatcher, func(interface{})) {
	t.Helper()
	w := NewResponseWatcher(context.Background(), zap.NewNop())
	var handler func(interface{})
	w.listen = func(ctx context.Context, fn func(ev interface{})) {
		handler = fn
	}
	w.enableNetwork = func(ctx context.Context) error { return enableErr }
	return w, func(ev interface{}) {
		require.NotNil(t, handler, "listener not installed")
		handler(ev)
	}
}

func responseEvent(url string, status int64, mime string) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		Response: &network.Response{URL: url, Status: status, MimeType: mime},
	}
}

func TestEnableWithoutSessionContext(t *testing.T) {
	w := NewResponseWatcher(nil, zap.NewNop())
	assert.ErrorIs(t, w.Enable(), ErrNotReady)
}

func TestEnableIsIdempotent(t *testing.T) {
	calls := 0
	w := NewResponseWatcher(context.Background(), zap.NewNop())
	w.listen = func(ctx context.Context, fn func(ev interface{})) { calls++ }
	w.enableNetwork = func(ctx context.Context) error { return nil }

	require.NoError(t, w.Enable())
	require.NoError(t, w.Enable())
	assert.Equal(t, 1, calls, "listener installed once")
}

func TestEnableRollsBackOnNetworkFailure(t *testing.T) {
	w, _ := newStubbedWatcher(t, assert.AnError)
	require.Error(t, w.Enable())

	out := w.WaitFor(context.Background(), SubmissionConfirmed, 10*time.Millisecond)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, ErrNotReady)
}

func TestWaitForBeforeEnable(t *testing.T) {
	w, _ := newStubbedWatcher(t, nil)
	out := w.WaitFor(context.Background(), SubmissionConfirmed, 10*time.Millisecond)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, ErrNotReady)
}

func TestMalformedEventsYieldDefaultRecords(t *testing.T) {
	w, emit := newStubbedWatcher(t, nil)
	require.NoError(t, w.Enable())

	assert.NotPanics(t, func() {
		emit("not an event at all")
		emit((*network.EventResponseReceived)(nil))
		emit(&network.EventResponseReceived{}) // nil Response
	})

	recs := w.Records()
	require.Len(t, recs, 2, "non-event values dropped, malformed events kept with defaults")
	for _, rec := range recs {
		assert.Empty(t, rec.URL)
		assert.Zero(t, rec.Status)
		assert.Empty(t, rec.MimeType)
	}
}

func TestWaitForMatchesResponse(t *testing.T) {
	w, emit := newStubbedWatcher(t, nil)
	require.NoError(t, w.Enable())

	emit(responseEvent("https://wafid.com/static/app.js", 200, "text/javascript"))
	emit(responseEvent("https://wafid.com/book-appointment", 200, "text/html"))

	out := w.WaitFor(context.Background(), SubmissionConfirmed, time.Second)
	require.Equal(t, StateSuccess, out.State)
	assert.Equal(t, "https://wafid.com/book-appointment", out.Record.URL)
	assert.EqualValues(t, 200, out.Record.Status)
}

func TestWaitForPicksUpLateResponse(t *testing.T) {
	w, emit := newStubbedWatcher(t, nil)
	require.NoError(t, w.Enable())

	go func() {
		time.Sleep(100 * time.Millisecond)
		emit(responseEvent("https://wafid.com/book-appointment", 201, "text/html"))
	}()

	out := w.WaitFor(context.Background(), SubmissionConfirmed, 2*time.Second)
	require.Equal(t, StateSuccess, out.State)
	assert.EqualValues(t, 201, out.Record.Status)
}

func TestWaitForTimeoutIsNotAnError(t *testing.T) {
	w, emit := newStubbedWatcher(t, nil)
	require.NoError(t, w.Enable())

	emit(responseEvent("https://wafid.com/book-appointment", 500, "text/html"))

	out := w.WaitFor(context.Background(), SubmissionConfirmed, 80*time.Millisecond)
	assert.Equal(t, StateTimeout, out.State)
	assert.NoError(t, out.Err)
}

func TestWaitForContextCancellation(t *testing.T) {
	w, _ := newStubbedWatcher(t, nil)
	require.NoError(t, w.Enable())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	out := w.WaitFor(ctx, SubmissionConfirmed, 5*time.Second)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestPredicatePanicIsContained(t *testing.T) {
	w, emit := newStubbedWatcher(t, nil)
	require.NoError(t, w.Enable())

	emit(responseEvent("https://wafid.com/book-appointment", 200, "text/html"))

	out := w.WaitFor(context.Background(), func(Record) bool {
		panic("predicate bug")
	}, time.Second)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, ErrPredicateFailure)
}

func TestNilPredicate(t *testing.T) {
	w, _ := newStubbedWatcher(t, nil)
	require.NoError(t, w.Enable())

	out := w.WaitFor(context.Background(), nil, time.Second)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, ErrPredicateFailure)
}

func TestSubmissionConfirmedPredicate(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want bool
	}{
		{"booking 200", Record{URL: "https://wafid.com/book-appointment", Status: 200}, true},
		{"booking 204", Record{URL: "https://wafid.com/book-appointment/", Status: 204}, true},
		{"booking 500", Record{URL: "https://wafid.com/book-appointment", Status: 500}, false},
		{"unrelated 200", Record{URL: "https://wafid.com/static/app.js", Status: 200}, false},
		{"empty", Record{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SubmissionConfirmed(tc.rec))
		})
	}
}
