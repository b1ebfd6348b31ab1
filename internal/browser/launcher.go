// internal/browser/launcher.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetd/api/schemas"
	"github.com/xkilldash9x/puppetd/internal/browser/stealth"
	"github.com/xkilldash9x/puppetd/internal/config"
)

// launchProbeTimeout bounds the startup liveness check.
const launchProbeTimeout = 30 * time.Second

// Launcher starts browser-process instances from launch options. It is a
// pure startup helper; failures are returned for the caller to log and
// convert into a negative launch reply, never to crash the server.
type Launcher struct {
	logger   *zap.Logger
	defaults config.BrowserConfig
}

// NewLauncher creates a launcher applying daemon-side defaults for options
// a request leaves unset.
func NewLauncher(defaults config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{
		logger:   logger.Named("launcher"),
		defaults: defaults,
	}
}

// Launch starts one browser process configured by the global options and
// verifies it responds before handing back the handle.
func (l *Launcher) Launch(ctx context.Context, opts *schemas.GlobalOptions) (*Browser, error) {
	allocOpts := l.buildAllocatorOptions(opts)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx)

	// Confirm the process starts and responds before registering anything.
	probeCtx, probeCancel := context.WithTimeout(rootCtx, launchProbeTimeout)
	err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank"))
	probeCancel()
	if err != nil {
		rootCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	l.logger.Info("Browser launched",
		zap.Bool("headless", opts.IsHeadless()),
		zap.Bool("stealth", opts.Stealth))

	return &Browser{
		logger:      l.logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		stealth:     opts.Stealth,
	}, nil
}

// buildAllocatorOptions assembles the command-line flags for the browser
// process: configured launch arguments, a synthesized proxy flag, and the
// flags required for containerized environments.
func (l *Launcher) buildAllocatorOptions(opts *schemas.GlobalOptions) []chromedp.ExecAllocatorOption {
	var allocOpts []chromedp.ExecAllocatorOption

	// Start from the defaults, minus the flag that advertises automation.
	// ExecAllocatorOption is an opaque func type, so the default cannot be
	// filtered out; overriding it with false makes chromedp omit the flag.
	allocOpts = append(allocOpts, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("enable-automation", false))

	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.IsHeadless()))

	execPath := opts.ExecutablePath
	if execPath == "" {
		execPath = l.defaults.ExecutablePath
	}
	if execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
	}

	for _, arg := range append(append([]string{}, l.defaults.Args...), opts.LaunchArguments...) {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if flagName == "" {
			continue
		}
		if len(parts) == 2 {
			allocOpts = append(allocOpts, chromedp.Flag(flagName, parts[1]))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(flagName, true))
		}
	}

	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}

	if opts.Stealth {
		allocOpts = append(allocOpts,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.UserAgent(stealth.DefaultPersona.UserAgent),
		)
	}

	// Flags required when running inside containers.
	if runtime.GOOS == "linux" {
		allocOpts = append(allocOpts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return allocOpts
}
