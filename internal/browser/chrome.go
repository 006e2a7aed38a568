// File: internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/wafidbot/wafidbot/internal/config"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// chromeDriver owns one Chrome process: the exec allocator plus a single tab.
type chromeDriver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

func (d *chromeDriver) Context() context.Context { return d.tabCtx }

func (d *chromeDriver) Close(ctx context.Context) error {
	d.tabCancel()
	d.allocCancel()
	// Wait for the allocator to confirm process termination, but respect the
	// caller's deadline.
	select {
	case <-d.allocCtx.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser termination: %w", ctx.Err())
	}
}

// chromeLauncher starts headless Chrome through chromedp's exec allocator.
type chromeLauncher struct {
	cfg config.BrowserConfig
}

func (l *chromeLauncher) launch(ctx context.Context, scratchDir, proxyURL string, opts Options) (driver, error) {
	aopts := buildAllocatorOptions(l.cfg, scratchDir, proxyURL, opts)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, aopts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Probe the process so a dead or unresponsive browser fails Open rather
	// than the first real navigation.
	probeCtx, cancelProbe := context.WithTimeout(tabCtx, l.cfg.LaunchTimeout)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	return &chromeDriver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// buildAllocatorOptions assembles Chrome flags: the chromedp defaults with
// the automation tells overridden, plus scratch dir, proxy and configured
// extras. Later flags win, so the overrides are appended after the defaults.
func buildAllocatorOptions(cfg config.BrowserConfig, scratchDir, proxyURL string, opts Options) []chromedp.ExecAllocatorOption {
	aopts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	aopts = append(aopts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.UserAgent(defaultUserAgent),
		chromedp.UserDataDir(scratchDir),
	)

	if proxyURL != "" {
		aopts = append(aopts, chromedp.ProxyServer(proxyURL))
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			aopts = append(aopts, chromedp.Flag(flagName, parts[1]))
		} else {
			aopts = append(aopts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required inside containers.
	if runtime.GOOS == "linux" {
		aopts = append(aopts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return aopts
}
