// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wafidbot/wafidbot/internal/config"
	"github.com/wafidbot/wafidbot/internal/observability"
	"github.com/wafidbot/wafidbot/internal/proxypool"
)

// Options configures a single session.
type Options struct {
	Headless bool
	Proxy    *proxypool.Endpoint
}

// driver abstracts the underlying browser process so the lifecycle logic can
// be exercised without a real Chrome binary.
type driver interface {
	// Context returns the tab context actions run against.
	Context() context.Context
	// Close terminates the browser process, respecting the given deadline.
	Close(ctx context.Context) error
}

// launcher starts a driver bound to a scratch directory and optional proxy.
type launcher interface {
	launch(ctx context.Context, scratchDir, proxyURL string, opts Options) (driver, error)
}

// Manager owns the lifecycle of browser sessions: creation, handoff and
// guaranteed teardown. At most one session is expected per worker, but the
// manager itself is safe for concurrent use.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	events *observability.EventLog

	launcher launcher

	mu   sync.Mutex
	open map[string]*Session
	wg   sync.WaitGroup
}

// NewManager creates a session manager backed by a headless Chrome launcher.
func NewManager(logger *zap.Logger, events *observability.EventLog, cfg config.BrowserConfig) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = observability.NewEventLog(zap.NewNop())
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		events:   events,
		launcher: &chromeLauncher{cfg: cfg},
		open:     make(map[string]*Session),
	}
}

// Open allocates a scratch directory, starts the proxy relay when an endpoint
// is requested, launches the driver and returns the live session. If any step
// after directory creation fails, everything already materialized, the scratch
// directory included, is released before the error is surfaced.
func (m *Manager) Open(ctx context.Context, opts Options) (*Session, error) {
	id := uuid.New().String()
	logger := m.logger.With(zap.String("session_id", id[:8]))

	scratchDir, err := os.MkdirTemp("", "wafidbot-profile-")
	if err != nil {
		m.events.Error("session open failed: scratch directory: " + err.Error())
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	var relay *Relay
	proxyURL := ""
	if opts.Proxy != nil {
		relay, err = StartRelay(logger, *opts.Proxy)
		if err != nil {
			m.removeScratch(logger, scratchDir)
			m.events.Error("session open failed: proxy relay: " + err.Error())
			return nil, fmt.Errorf("start proxy relay: %w", err)
		}
		proxyURL = "http://" + relay.Addr()
	}

	drv, err := m.launcher.launch(ctx, scratchDir, proxyURL, opts)
	if err != nil {
		if relay != nil {
			if stopErr := relay.Stop(ctx); stopErr != nil {
				logger.Warn("relay stop during failed open", zap.Error(stopErr))
			}
		}
		m.removeScratch(logger, scratchDir)
		m.events.Error("session open failed: " + err.Error())
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	s := &Session{
		id:         id,
		drv:        drv,
		relay:      relay,
		scratchDir: scratchDir,
		proxy:      opts.Proxy,
		createdAt:  time.Now(),
		logger:     logger,
		events:     m.events,
	}
	s.release = func() { m.unregister(s) }

	m.mu.Lock()
	m.open[id] = s
	m.mu.Unlock()
	m.wg.Add(1)

	if opts.Proxy != nil {
		logger.Info("browser session opened", zap.String("proxy", opts.Proxy.URL()))
		m.events.Info("browser session " + id + " opened via proxy " + opts.Proxy.Addr())
	} else {
		logger.Info("browser session opened")
		m.events.Info("browser session " + id + " opened")
	}
	return s, nil
}

// OpenCount returns the number of sessions not yet closed.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Shutdown closes every session still open and waits for them to finish,
// respecting the caller's deadline. This is the scope-bound release guarantee:
// a session that was never explicitly closed is torn down here.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	stale := make([]*Session, 0, len(m.open))
	for _, s := range m.open {
		stale = append(stale, s)
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.logger.Warn("closing session left open at shutdown", zap.String("session_id", s.id[:8]))
		s.Close(ctx)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("all browser sessions released")
	case <-ctx.Done():
		m.logger.Warn("shutdown deadline exceeded with sessions pending", zap.Error(ctx.Err()))
	}
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	_, tracked := m.open[s.id]
	delete(m.open, s.id)
	m.mu.Unlock()
	if tracked {
		m.wg.Done()
	}
}

func (m *Manager) removeScratch(logger *zap.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("scratch directory cleanup after failed open", zap.String("dir", dir), zap.Error(err))
	}
}
