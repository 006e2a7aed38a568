// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wafidbot/wafidbot/internal/browser"
	"github.com/wafidbot/wafidbot/internal/config"
	"github.com/wafidbot/wafidbot/internal/formfill"
	"github.com/wafidbot/wafidbot/internal/observability"
	"github.com/wafidbot/wafidbot/internal/orchestrator"
	"github.com/wafidbot/wafidbot/internal/proxypool"
)

var (
	runURL        string
	runCandidates string
	runHeadful    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the booking loop until a submission is confirmed or retries are exhausted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBooking(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVarP(&runURL, "url", "u", "", "booking form URL (overrides config)")
	runCmd.Flags().StringVarP(&runCandidates, "candidates", "d", "", "candidate CSV file (overrides config)")
	runCmd.Flags().BoolVar(&runHeadful, "headful", false, "run the browser with a visible window")
	rootCmd.AddCommand(runCmd)
}

func runBooking(parent context.Context) error {
	cfg := appCfg
	logger := observability.GetLogger()
	events := observability.NewEventLog(logger)

	if runCandidates != "" {
		cfg.Booking.CandidateFile = runCandidates
	}
	if runHeadful {
		cfg.Browser.Headless = false
	}
	if cfg.Booking.CandidateFile == "" {
		return fmt.Errorf("no candidate file configured; pass --candidates or set booking.candidate_file")
	}

	candidate, err := formfill.LoadCandidate(cfg.Booking.CandidateFile)
	if err != nil {
		return err
	}
	logger.Info("candidate data loaded",
		zap.String("file", cfg.Booking.CandidateFile),
		zap.Int("fields", candidate.Fields()))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := buildPool(logger, events, cfg)
	if err := pool.Refresh(ctx); err != nil {
		// A dry pool is not fatal: attempts degrade to direct connections.
		logger.Warn("proxy pool refresh failed, continuing without proxies", zap.Error(err))
	}

	manager := browser.NewManager(logger, events, cfg.Browser)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		manager.Shutdown(shutdownCtx)
	}()

	filler, err := formfill.NewFiller(logger, events, candidate, cfg.Network.NavigationTimeout)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(logger, events, pool,
		sessionOpener{manager},
		fillAdapter{filler},
		newWatchConfirmer(logger),
		*cfg)
	if err != nil {
		return err
	}
	if runURL != "" {
		if !orch.SetBookingURL(runURL) {
			return fmt.Errorf("invalid booking url: %q", runURL)
		}
	}

	go func() {
		<-ctx.Done()
		orch.Stop()
	}()

	return orch.Start(ctx)
}

// buildPool assembles the proxy pool from every configured source.
func buildPool(logger *zap.Logger, events *observability.EventLog, cfg *config.Config) *proxypool.Pool {
	client := &http.Client{Timeout: cfg.Proxy.FetchTimeout}

	var sources []proxypool.Source
	if len(cfg.Proxy.Static) > 0 {
		sources = append(sources, &proxypool.StaticSource{Entries: cfg.Proxy.Static})
	}
	for _, url := range cfg.Proxy.TextSources {
		sources = append(sources, &proxypool.TextSource{URL: url, Client: client})
	}
	for _, url := range cfg.Proxy.HTMLSources {
		sources = append(sources, &proxypool.HTMLSource{URL: url, Client: client})
	}

	var validator *proxypool.Validator
	if !cfg.Proxy.SkipValidation {
		validator = proxypool.NewValidator(cfg.Proxy.ValidateTimeout, cfg.Proxy.ValidateConcurrency)
	}
	return proxypool.NewPool(logger, events, sources, validator)
}

// sessionOpener adapts *browser.Manager to the orchestrator's SessionManager.
type sessionOpener struct {
	manager *browser.Manager
}

func (o sessionOpener) Open(ctx context.Context, opts browser.Options) (orchestrator.Session, error) {
	session, err := o.manager.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// fillAdapter adapts *formfill.Filler; an orchestrator session already
// satisfies formfill's Page.
type fillAdapter struct {
	filler *formfill.Filler
}

func (a fillAdapter) Fill(ctx context.Context, session orchestrator.Session, bookingURL string) error {
	return a.filler.Fill(ctx, session, bookingURL)
}

// watchConfirmer arms a response watcher per session and resolves it on
// Confirm. Arming before the submission keeps the confirming response from
// slipping past unobserved.
type watchConfirmer struct {
	logger *zap.Logger

	mu       sync.Mutex
	watchers map[string]*browser.ResponseWatcher
}

func newWatchConfirmer(logger *zap.Logger) *watchConfirmer {
	return &watchConfirmer{
		logger:   logger,
		watchers: make(map[string]*browser.ResponseWatcher),
	}
}

func (c *watchConfirmer) Arm(session orchestrator.Session) error {
	w := browser.NewResponseWatcher(session.Context(), c.logger)
	if err := w.Enable(); err != nil {
		return err
	}
	c.mu.Lock()
	c.watchers[session.ID()] = w
	c.mu.Unlock()
	return nil
}

func (c *watchConfirmer) Confirm(ctx context.Context, session orchestrator.Session, timeout time.Duration) browser.Outcome {
	c.mu.Lock()
	w := c.watchers[session.ID()]
	delete(c.watchers, session.ID())
	c.mu.Unlock()

	if w == nil {
		return browser.Outcome{State: browser.StateFailed, Err: browser.ErrNotReady}
	}
	return w.WaitFor(ctx, browser.SubmissionConfirmed, timeout)
}
