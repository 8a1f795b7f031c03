// File: internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
)

// ErrSessionClosed is returned by every operation after Close.
var ErrSessionClosed = errors.New("browser session closed")

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultActionTimeout     = 10 * time.Second
	stabilizeTimeout         = 10 * time.Second
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Session is one Chrome tab driven through CDP. It is owned by a single agent
// instance and is not safe for concurrent actions.
type Session struct {
	id        string
	cfg       config.BrowserConfig
	logger    *zap.Logger
	harvester *Harvester

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu       sync.Mutex
	viewport schemas.Viewport
	closed   bool
}

// NewSession launches a browser and opens a tab sized to vp. The session
// outlives cancellation of ctx so the agent can still tear it down cleanly.
func NewSession(ctx context.Context, cfg config.BrowserConfig, vp schemas.Viewport, logger *zap.Logger) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}

	sessionID := uuid.NewString()
	s := &Session{
		id:       sessionID,
		cfg:      cfg,
		logger:   logger.Named("browser").With(zap.String("browser_session", sessionID)),
		viewport: vp,
	}
	s.harvester = NewHarvester(s.logger)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.ctx, s.cancel, s.allocCancel = tabCtx, tabCancel, allocCancel

	// The first Run starts the browser and attaches the tab. It must not carry
	// a deadline, chromedp ties the browser's lifetime to that context.
	if err := chromedp.Run(tabCtx); err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	s.harvester.Listen(tabCtx)

	setup := []chromedp.Action{
		network.Enable(),
		log.Enable(),
		page.Enable(),
		page.SetInterceptFileChooserDialog(true),
	}
	if vp.Width > 0 && vp.Height > 0 {
		setup = append(setup, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height)))
	}
	if err := s.run(ctx, cfg.NavigationTimeout, setup...); err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to initialize browser tab: %w", err)
	}

	s.logger.Info("Browser session started.", zap.Bool("headless", cfg.Headless), zap.String("viewport", vp.Name))
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Navigate loads url and waits for the network to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	s.stabilize(ctx)
	return nil
}

// Click scrolls the element into view and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click action failed for selector '%s': %w", selector, err)
	}
	s.stabilize(ctx)
	return nil
}

// Type replaces the element's value with text.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type action failed for selector '%s': %w", selector, err)
	}
	return nil
}

// Scroll moves the page up or down by most of a screen.
func (s *Session) Scroll(ctx context.Context, direction string) error {
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(scrollScript(direction), nil)); err != nil {
		return fmt.Errorf("scroll %s failed: %w", direction, err)
	}
	return nil
}

// Resize switches the emulated viewport.
func (s *Session) Resize(ctx context.Context, vp schemas.Viewport) error {
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height))); err != nil {
		return fmt.Errorf("resize to %s failed: %w", vp.Name, err)
	}
	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()
	return nil
}

// PageState probes the current document and drains the event buffers.
func (s *Session) PageState(ctx context.Context) (*schemas.PageState, error) {
	var probe probeResult
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(pageProbeScript, &probe)); err != nil {
		return nil, fmt.Errorf("failed to read page state: %w", err)
	}
	console, httpErrs := s.harvester.Drain()
	return probe.toPageState(s.Viewport(), console, httpErrs, s.cfg.BodyTextLimit, s.cfg.ElementTextLimit, time.Now().UTC()), nil
}

// Screenshot captures the viewport into the screenshot directory and returns
// the file path.
func (s *Session) Screenshot(ctx context.Context, name string) (string, error) {
	var buf []byte
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	dir := s.cfg.ScreenshotDir
	if dir == "" {
		dir = "."
	}
	if err := config.EnsureDir(dir); err != nil {
		return "", err
	}
	file := fmt.Sprintf("%s-%s.png", unsafeFileChars.ReplaceAllString(name, "_"), uuid.NewString()[:8])
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

// Viewport is the currently emulated screen size.
func (s *Session) Viewport() schemas.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// BlockedUploads returns the file choosers intercepted since the last call.
func (s *Session) BlockedUploads() []schemas.BlockedUpload {
	return s.harvester.DrainBlockedUploads()
}

// Close shuts the tab and the browser process. It is safe to call twice.
func (s *Session) Close(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.harvester.Stop()

	// chromedp.Cancel closes the tab gracefully before the allocator kills the process.
	err := chromedp.Cancel(s.ctx)
	s.teardown()
	s.logger.Info("Browser session closed.")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func (s *Session) teardown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// stabilize waits briefly for the network to go idle. A busy page is not an
// error; the agent reads whatever is there.
func (s *Session) stabilize(ctx context.Context) {
	if s.cfg.PostLoadWait <= 0 {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, stabilizeTimeout)
	defer cancel()
	if err := s.harvester.WaitNetworkIdle(waitCtx, s.cfg.PostLoadWait); err != nil {
		s.logger.Debug("Page did not settle.", zap.Error(err))
	}
}

// run executes actions on the tab bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && opCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("timed out after %v: %w", timeout, err)
	}
	return err
}
