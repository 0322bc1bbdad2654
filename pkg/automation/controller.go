package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// ErrNotRunning is returned when a page is requested while the browser
// process is not available. Callers treat it as a transient browser fault.
var ErrNotRunning = errors.New("browser is not running")

// Config controls how the browser process is launched.
type Config struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool

	// BlockedResources lists resource types aborted at the network layer
	// (e.g. "image", "font", "media") to keep page loads cheap.
	BlockedResources []string

	// UserAgent overrides the browser's default user agent when non-empty.
	UserAgent string

	// HealthCheckTimeout bounds the trivial-page round trip used by
	// HealthCheck.
	HealthCheckTimeout time.Duration

	// InstallBrowsers runs the driver's browser download on Initialize.
	InstallBrowsers bool
}

// DefaultConfig returns the reduced-fingerprint launch profile.
func DefaultConfig() Config {
	return Config{
		Headless:           true,
		BlockedResources:   []string{"image", "font", "media"},
		HealthCheckTimeout: 10 * time.Second,
		InstallBrowsers:    true,
	}
}

// launchArgs suppress the automation-detectable signals Chromium exposes by
// default.
var launchArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--no-sandbox",
}

// Health is the controller's externally visible health snapshot.
type Health struct {
	BrowserOK     bool          `json:"browserOk"`
	LastLatency   time.Duration `json:"-"`
	LastLatencyMs int64         `json:"lastLatencyMs"`
	LastCheckedAt time.Time     `json:"lastCheckedAt"`
}

// Controller owns the single long-lived browser process. All mutation of
// the process handle goes through the controller; callers only ever see
// page leases.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	log     zerolog.Logger
	pw      *playwright.Playwright
	browser playwright.Browser
	running bool

	healthMu sync.RWMutex
	health   Health
}

// NewController creates a controller. The browser is not launched until
// Initialize is called.
func NewController(cfg Config, log zerolog.Logger) *Controller {
	return &Controller{
		cfg: cfg,
		log: log.With().Str("component", "browser").Logger(),
	}
}

// Initialize launches the browser process if it is not already running.
// It is idempotent and safe to call after a failed earlier attempt.
func (c *Controller) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked()
}

func (c *Controller) initializeLocked() error {
	if c.running {
		return nil
	}

	// Discard driver output so it cannot interleave with structured logs.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if c.cfg.InstallBrowsers {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	if c.pw == nil {
		pw, err := playwright.Run(runOpts)
		if err != nil {
			return fmt.Errorf("failed to start playwright: %w", err)
		}
		c.pw = pw
	}

	browser, err := c.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(c.cfg.Headless),
		Args:     launchArgs,
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	c.browser = browser
	c.running = true
	c.setHealth(true, 0)
	c.log.Info().Bool("headless", c.cfg.Headless).Msg("browser launched")
	return nil
}

// LeasePage returns a fresh isolated page in its own browser context. The
// caller must Close the lease on every exit path.
func (c *Controller) LeasePage() (*PageLease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.browser == nil || !c.browser.IsConnected() {
		return nil, ErrNotRunning
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 720},
	}
	if c.cfg.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(c.cfg.UserAgent)
	}
	browserCtx, err := c.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	if len(c.cfg.BlockedResources) > 0 {
		blocked := make(map[string]bool, len(c.cfg.BlockedResources))
		for _, r := range c.cfg.BlockedResources {
			blocked[r] = true
		}
		err = browserCtx.Route("**/*", func(route playwright.Route) {
			if blocked[route.Request().ResourceType()] {
				_ = route.Abort()
				return
			}
			_ = route.Continue()
		})
		if err != nil {
			_ = browserCtx.Close()
			return nil, fmt.Errorf("failed to install resource filter: %w", err)
		}
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		_ = browserCtx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return NewPageLease(newPlaywrightPage(page), func() {
		_ = browserCtx.Close()
	}), nil
}

// HealthCheck opens a trivial page and measures the round-trip latency.
// The snapshot is stored for the health surface regardless of outcome.
func (c *Controller) HealthCheck() (Health, error) {
	start := time.Now()

	lease, err := c.LeasePage()
	if err != nil {
		c.setHealth(false, 0)
		return c.Health(), err
	}
	defer lease.Close()

	if err := lease.Page.Navigate("about:blank", c.cfg.HealthCheckTimeout); err != nil {
		c.setHealth(false, 0)
		return c.Health(), err
	}

	c.setHealth(true, time.Since(start))
	return c.Health(), nil
}

// Restart closes the current browser process best-effort and launches a
// fresh one. Close errors are swallowed: a crashed process often cannot be
// closed cleanly and that must not prevent recovery.
func (c *Controller) Restart(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Warn().Msg("restarting browser")
	if c.browser != nil {
		_ = c.browser.Close()
		c.browser = nil
	}
	c.running = false
	c.setHealth(false, 0)

	return c.initializeLocked()
}

// Shutdown closes the browser and stops the driver.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		_ = c.browser.Close()
		c.browser = nil
	}
	c.running = false
	c.setHealth(false, 0)

	if c.pw != nil {
		if err := c.pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		c.pw = nil
	}
	return nil
}

// Running reports whether the browser process is currently available.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.browser != nil && c.browser.IsConnected()
}

// Health returns the latest stored health snapshot.
func (c *Controller) Health() Health {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.health
}

func (c *Controller) setHealth(ok bool, latency time.Duration) {
	c.healthMu.Lock()
	c.health = Health{
		BrowserOK:     ok,
		LastLatency:   latency,
		LastLatencyMs: latency.Milliseconds(),
		LastCheckedAt: time.Now(),
	}
	c.healthMu.Unlock()
}

// RunHealthMonitor performs periodic health checks until the context is
// cancelled, restarting the browser after an unhealthy result.
func (c *Controller) RunHealthMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.HealthCheck(); err != nil {
				c.log.Error().Err(err).Msg("health check failed")
				if err := c.Restart(ctx); err != nil {
					c.log.Error().Err(err).Msg("browser restart failed")
				}
			}
		}
	}
}
