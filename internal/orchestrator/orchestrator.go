// File: internal/orchestrator/orchestrator.go
// Package orchestrator drives the booking run loop: acquire a proxy, open a
// browser session, submit the form, wait for confirmation, and retry on
// recoverable failure. It owns the start/stop lifecycle and routes every
// state transition through the event log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wafidbot/wafidbot/internal/browser"
	"github.com/wafidbot/wafidbot/internal/config"
	"github.com/wafidbot/wafidbot/internal/observability"
	"github.com/wafidbot/wafidbot/internal/proxypool"
)

// ErrAlreadyRunning is returned by Start when a run loop is in flight.
var ErrAlreadyRunning = errors.New("orchestrator: already running")

// ErrRetriesExhausted is the single terminal failure of a run: every attempt
// in the retry budget failed.
var ErrRetriesExhausted = errors.New("orchestrator: retries exhausted")

// errStopRequested marks a run ended by Stop rather than by outcome.
var errStopRequested = errors.New("orchestrator: stop requested")

// State is the orchestrator's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// ProxyProvider hands out upstream endpoints for attempts.
type ProxyProvider interface {
	Next() (proxypool.Endpoint, bool)
}

// Session is the live browser handle the run loop works against.
// *browser.Session satisfies it.
type Session interface {
	ID() string
	Context() context.Context
	Close(ctx context.Context)
}

// SessionManager opens sessions configured for a single attempt.
type SessionManager interface {
	Open(ctx context.Context, opts browser.Options) (Session, error)
}

// FormFiller performs the form submission against an open session. Its field
// detection and candidate data are its own business.
type FormFiller interface {
	Fill(ctx context.Context, session Session, bookingURL string) error
}

// Confirmer waits for evidence that a submission landed. Arm is called right
// after the session opens, before any navigation, so the response stream is
// already being observed when the submission goes out.
type Confirmer interface {
	Arm(session Session) error
	Confirm(ctx context.Context, session Session, timeout time.Duration) browser.Outcome
}

// Orchestrator is the top-level state machine. One run loop at a time; Stop
// may be called from any goroutine.
type Orchestrator struct {
	logger   *zap.Logger
	events   *observability.EventLog
	pool     ProxyProvider
	sessions SessionManager
	filler   FormFiller
	confirm  Confirmer

	maxRetries     int
	confirmTimeout time.Duration
	headless       bool

	stopRequested atomic.Bool

	mu         sync.Mutex
	state      State
	bookingURL string
	attempt    int
	current    Session
}

// New wires an orchestrator from its collaborators. All of them are required.
func New(logger *zap.Logger, events *observability.EventLog, pool ProxyProvider, sessions SessionManager, filler FormFiller, confirm Confirmer, cfg config.Config) (*Orchestrator, error) {
	if logger == nil {
		return nil, errors.New("orchestrator: logger is required")
	}
	if events == nil {
		return nil, errors.New("orchestrator: event log is required")
	}
	if pool == nil {
		return nil, errors.New("orchestrator: proxy provider is required")
	}
	if sessions == nil {
		return nil, errors.New("orchestrator: session manager is required")
	}
	if filler == nil {
		return nil, errors.New("orchestrator: form filler is required")
	}
	if confirm == nil {
		return nil, errors.New("orchestrator: confirmer is required")
	}

	maxRetries := cfg.Booking.MaxRetries
	if maxRetries <= 0 {
		maxRetries = config.DefaultMaxRetries
	}
	confirmTimeout := cfg.Network.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 30 * time.Second
	}

	o := &Orchestrator{
		logger:         logger.Named("orchestrator"),
		events:         events,
		pool:           pool,
		sessions:       sessions,
		filler:         filler,
		confirm:        confirm,
		maxRetries:     maxRetries,
		confirmTimeout: confirmTimeout,
		headless:       cfg.Browser.Headless,
		bookingURL:     config.DefaultBookingURL,
	}
	if cfg.Booking.URL != "" && cfg.Booking.URL != config.DefaultBookingURL {
		if !o.SetBookingURL(cfg.Booking.URL) {
			o.logger.Warn("configured booking url rejected, keeping default",
				zap.String("url", cfg.Booking.URL),
				zap.String("default", config.DefaultBookingURL))
		}
	}
	return o, nil
}

// ValidBookingURL reports whether url passes the booking-target rules after
// trimming: an http or https scheme, a non-empty host, and no whitespace
// anywhere inside the trimmed string. The trimmed URL is returned on success.
func ValidBookingURL(url string) (string, bool) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return "", false
	}
	if strings.ContainsAny(trimmed, " \t\n\r") {
		return "", false
	}
	var host string
	switch {
	case strings.HasPrefix(trimmed, "https://"):
		host = trimmed[len("https://"):]
	case strings.HasPrefix(trimmed, "http://"):
		host = trimmed[len("http://"):]
	default:
		return "", false
	}
	if host == "" || strings.HasPrefix(host, "/") {
		return "", false
	}
	return trimmed, true
}

// SetBookingURL validates and atomically installs a new target URL. A bad
// input is rejected with false and leaves the stored URL untouched.
func (o *Orchestrator) SetBookingURL(url string) bool {
	trimmed, ok := ValidBookingURL(url)
	if !ok {
		o.events.Warningf("rejected booking url %q", url)
		return false
	}
	o.mu.Lock()
	o.bookingURL = trimmed
	o.mu.Unlock()
	o.events.Infof("booking url set to %s", trimmed)
	return true
}

// BookingURL returns the currently installed target.
func (o *Orchestrator) BookingURL() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bookingURL
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Attempt returns the attempt counter of the current or last run.
func (o *Orchestrator) Attempt() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempt
}

// Start runs the booking loop until one attempt succeeds, the retry budget is
// exhausted, the context is cancelled, or Stop is called. It reports exactly
// one terminal outcome per call: nil on success, an error otherwise. The
// orchestrator is back in Idle when Start returns.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.state = StateRunning
	o.attempt = 0
	url := o.bookingURL
	o.mu.Unlock()
	o.stopRequested.Store(false)

	o.events.Infof("run started against %s (budget %d attempts)", url, o.maxRetries)

	err := o.run(ctx, url)

	o.mu.Lock()
	o.state = StateIdle
	attempts := o.attempt
	o.mu.Unlock()

	switch {
	case err == nil:
		o.events.Infof("run succeeded on attempt %d", attempts)
	case errors.Is(err, errStopRequested), errors.Is(err, context.Canceled):
		o.events.Info("run stopped before completion")
	default:
		o.events.Errorf("run failed after %d attempts: %v", attempts, err)
	}
	return err
}

func (o *Orchestrator) run(ctx context.Context, url string) error {
	var lastErr error
	for i := 1; i <= o.maxRetries; i++ {
		// Cancellation is cooperative: checked at attempt boundaries only.
		if o.stopRequested.Load() {
			return errStopRequested
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		o.mu.Lock()
		o.attempt = i
		o.mu.Unlock()

		err := o.attemptOnce(ctx, url, i)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		o.events.Warningf("attempt %d/%d failed: %v", i, o.maxRetries, err)
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, o.maxRetries, lastErr)
}

// attemptOnce performs a single acquire, open, fill, confirm cycle. The
// session it opens is always closed before return, success or not.
func (o *Orchestrator) attemptOnce(ctx context.Context, url string, attempt int) error {
	opts := browser.Options{Headless: o.headless}
	if endpoint, ok := o.pool.Next(); ok {
		opts.Proxy = &endpoint
		o.events.Infof("attempt %d using proxy %s", attempt, endpoint.URL())
	} else {
		o.events.Warningf("attempt %d proceeding without a proxy", attempt)
	}

	session, err := o.sessions.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	o.mu.Lock()
	o.current = session
	o.mu.Unlock()
	defer o.releaseCurrent(session)

	if err := o.confirm.Arm(session); err != nil {
		return fmt.Errorf("arm confirmation watcher: %w", err)
	}

	if err := o.filler.Fill(ctx, session, url); err != nil {
		return fmt.Errorf("submit form: %w", err)
	}

	outcome := o.confirm.Confirm(ctx, session, o.confirmTimeout)
	switch outcome.State {
	case browser.StateSuccess:
		o.logger.Info("submission confirmed",
			zap.String("session_id", session.ID()),
			zap.String("url", outcome.Record.URL),
			zap.Int64("status", outcome.Record.Status))
		return nil
	case browser.StateTimeout:
		return errors.New("confirmation window elapsed")
	default:
		return fmt.Errorf("confirmation failed: %w", outcome.Err)
	}
}

// releaseCurrent closes the attempt's session and clears the handle, unless
// Stop already took ownership of it.
func (o *Orchestrator) releaseCurrent(session Session) {
	o.mu.Lock()
	mine := o.current == session
	if mine {
		o.current = nil
	}
	o.mu.Unlock()
	if mine {
		session.Close(context.Background())
	}
}

// Stop requests cooperative cancellation of a running loop and closes
// whatever session is currently open. Cleanup errors are logged by the
// session itself, never returned; the orchestrator always lands in Idle.
// Stopping an idle orchestrator is a no-op.
func (o *Orchestrator) Stop() {
	o.stopRequested.Store(true)

	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		o.events.Info("stop requested while idle, nothing to do")
		return
	}
	o.state = StateStopping
	session := o.current
	o.current = nil
	o.mu.Unlock()

	o.events.Info("stop requested")
	if session != nil {
		session.Close(context.Background())
	}
}
