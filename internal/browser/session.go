// File: internal/browser/session.go
package browser

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wafidbot/wafidbot/internal/observability"
	"github.com/wafidbot/wafidbot/internal/proxypool"
)

// Session is one lifetime of a driven browser instance, including its private
// scratch directory (the Chrome user-data-dir) and, when routed through a
// proxy, the loopback relay bound to that endpoint.
//
// Sessions are created only by Manager.Open and are handed out by pointer.
// Close is idempotent: driver shutdown, relay stop and scratch removal happen
// exactly once no matter how many callers race on it.
type Session struct {
	id         string
	drv        driver
	relay      *Relay
	scratchDir string
	proxy      *proxypool.Endpoint
	createdAt  time.Time

	logger *zap.Logger
	events *observability.EventLog
	// release unregisters the session from its manager; called once.
	release func()

	mu     sync.Mutex
	closed bool
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Context returns the driver's tab context for running browser actions. It is
// nil once the session is closed.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.drv == nil {
		return nil
	}
	return s.drv.Context()
}

// ScratchDir returns the session's private scratch directory path.
func (s *Session) ScratchDir() string { return s.scratchDir }

// Proxy returns the endpoint the session egresses through, or nil.
func (s *Session) Proxy() *proxypool.Endpoint { return s.proxy }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Closed reports whether Close has already run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down: driver quit, relay stop, scratch directory
// removal. Calling it again is a no-op. Teardown errors are logged and
// recorded, never returned, so a cleanup failure can neither mask the error
// that triggered the cleanup nor block forward progress.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.drv != nil {
		if err := s.drv.Close(ctx); err != nil {
			s.logger.Warn("driver shutdown failed", zap.Error(err))
			s.events.Warning("session " + s.id + ": driver shutdown failed: " + err.Error())
		}
	}

	if s.relay != nil {
		if err := s.relay.Stop(ctx); err != nil {
			s.logger.Warn("proxy relay stop failed", zap.Error(err))
		}
	}

	if s.scratchDir != "" {
		if err := os.RemoveAll(s.scratchDir); err != nil {
			s.logger.Warn("scratch directory removal failed",
				zap.String("dir", s.scratchDir), zap.Error(err))
			s.events.Warning("session " + s.id + ": scratch cleanup failed: " + err.Error())
		}
	}

	if s.release != nil {
		s.release()
	}

	s.logger.Info("browser session closed", zap.String("session_id", s.id))
	s.events.Info("browser session " + s.id + " closed")
}
