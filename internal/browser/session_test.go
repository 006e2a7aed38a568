// File: internal/browser/session_test.go
package browser

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wafidbot/wafidbot/internal/config"
	"github.com/wafidbot/wafidbot/internal/observability"
)

// fakeDriver stands in for a Chrome process.
type fakeDriver struct {
	ctx      context.Context
	mu       sync.Mutex
	closed   int
	closeErr error
}

func (d *fakeDriver) Context() context.Context { return d.ctx }

func (d *fakeDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return d.closeErr
}

func (d *fakeDriver) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// fakeLauncher produces fakeDrivers, or fails before/after "launching".
type fakeLauncher struct {
	mu        sync.Mutex
	launchErr error
	drivers   []*fakeDriver
	closeErr  error
}

func (l *fakeLauncher) launch(ctx context.Context, scratchDir, proxyURL string, opts Options) (driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	d := &fakeDriver{ctx: context.Background(), closeErr: l.closeErr}
	l.drivers = append(l.drivers, d)
	return d, nil
}

func newTestManager(t *testing.T, l launcher) *Manager {
	t.Helper()
	m := NewManager(zap.NewNop(), observability.NewEventLog(zap.NewNop()), config.BrowserConfig{
		Headless:      true,
		LaunchTimeout: 5 * time.Second,
	})
	if l != nil {
		m.launcher = l
	}
	return m
}

func TestOpenCreatesScratchDir(t *testing.T) {
	fl := &fakeLauncher{}
	m := newTestManager(t, fl)

	s, err := m.Open(context.Background(), Options{Headless: true})
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NotEmpty(t, s.ScratchDir())
	info, err := os.Stat(s.ScratchDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NotEmpty(t, s.ID())
	assert.False(t, s.CreatedAt().IsZero())
	assert.Equal(t, 1, m.OpenCount())
}

func TestOpenFailureRemovesScratchDir(t *testing.T) {
	fl := &fakeLauncher{launchErr: errors.New("chrome went missing")}
	m := newTestManager(t, fl)

	before := tempDirEntries(t)
	_, err := m.Open(context.Background(), Options{Headless: true})
	require.Error(t, err)
	assert.Equal(t, 0, m.OpenCount())

	after := tempDirEntries(t)
	assert.Equal(t, before, after, "no residual scratch directory after a failed open")
}

// tempDirEntries counts wafidbot scratch dirs currently in the temp root.
func tempDirEntries(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(os.TempDir())
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) > len("wafidbot-profile-") && e.Name()[:len("wafidbot-profile-")] == "wafidbot-profile-" {
			n++
		}
	}
	return n
}

func TestCloseIsIdempotent(t *testing.T) {
	fl := &fakeLauncher{}
	m := newTestManager(t, fl)

	s, err := m.Open(context.Background(), Options{Headless: true})
	require.NoError(t, err)
	dir := s.ScratchDir()

	s.Close(context.Background())
	s.Close(context.Background())
	s.Close(context.Background())

	assert.Equal(t, 1, fl.drivers[0].closeCount(), "driver shut down exactly once")
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "scratch directory removed")
	assert.True(t, s.Closed())
	assert.Equal(t, 0, m.OpenCount())
	assert.Nil(t, s.Context(), "closed session has no live context")
}

func TestCloseSwallowsDriverError(t *testing.T) {
	fl := &fakeLauncher{closeErr: errors.New("quit blew up")}
	m := newTestManager(t, fl)

	s, err := m.Open(context.Background(), Options{Headless: true})
	require.NoError(t, err)
	dir := s.ScratchDir()

	assert.NotPanics(t, func() { s.Close(context.Background()) })

	// Cleanup still completed despite the driver error.
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, m.OpenCount())
}

func TestConcurrentCloseRunsOnce(t *testing.T) {
	fl := &fakeLauncher{}
	m := newTestManager(t, fl)

	s, err := m.Open(context.Background(), Options{Headless: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fl.drivers[0].closeCount())
	assert.Equal(t, 0, m.OpenCount())
}

func TestShutdownClosesStaleSessions(t *testing.T) {
	fl := &fakeLauncher{}
	m := newTestManager(t, fl)

	s1, err := m.Open(context.Background(), Options{Headless: true})
	require.NoError(t, err)
	s2, err := m.Open(context.Background(), Options{Headless: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Shutdown(ctx)

	assert.True(t, s1.Closed())
	assert.True(t, s2.Closed())
	assert.Equal(t, 0, m.OpenCount())

	for _, s := range []*Session{s1, s2} {
		_, err := os.Stat(s.ScratchDir())
		assert.True(t, os.IsNotExist(err))
	}
}
