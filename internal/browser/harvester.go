// File: internal/browser/harvester.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

const (
	networkIdleCheckFrequency = 100 * time.Millisecond
	// Buffers are drained on every page read; the caps only matter when the
	// agent stalls on a noisy page.
	maxBufferedConsole = 200
	maxBufferedHTTP    = 200
)

// Harvester listens to CDP events for one tab and buffers the signals the
// agent consumes: console errors, failed responses and intercepted file
// choosers. Every buffer is handed out at most once.
type Harvester struct {
	logger *zap.Logger
	now    func() time.Time

	mu             sync.Mutex
	consoleErrors  []string
	httpErrors     []schemas.HTTPError
	blockedUploads []schemas.BlockedUpload
	currentURL     string
	inflight       map[network.RequestID]struct{}
	stopped        bool
}

// NewHarvester creates an idle harvester. Call Listen to attach it to a tab.
func NewHarvester(logger *zap.Logger) *Harvester {
	return &Harvester{
		logger:   logger.Named("harvester"),
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[network.RequestID]struct{}),
	}
}

// Listen subscribes to events on the chromedp tab context. The tab must
// already exist.
func (h *Harvester) Listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, h.handle)
}

// Stop makes the harvester ignore further events.
func (h *Harvester) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *Harvester) handle(ev interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}

	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		if ev.Type == runtime.APITypeError || ev.Type == runtime.APITypeAssert {
			h.addConsoleLocked(consoleText(ev.Args))
		}
	case *runtime.EventExceptionThrown:
		h.addConsoleLocked(exceptionText(ev.ExceptionDetails))
	case *log.EventEntryAdded:
		// Network failures are reported through the response events below.
		if ev.Entry != nil && ev.Entry.Level == log.LevelError && ev.Entry.Source != log.SourceNetwork {
			h.addConsoleLocked(ev.Entry.Text)
		}
	case *network.EventRequestWillBeSent:
		h.inflight[ev.RequestID] = struct{}{}
	case *network.EventResponseReceived:
		if ev.Response != nil && ev.Response.Status >= 400 && len(h.httpErrors) < maxBufferedHTTP {
			h.httpErrors = append(h.httpErrors, schemas.HTTPError{
				URL:        ev.Response.URL,
				Status:     int(ev.Response.Status),
				StatusText: ev.Response.StatusText,
			})
		}
	case *network.EventLoadingFinished:
		delete(h.inflight, ev.RequestID)
	case *network.EventLoadingFailed:
		delete(h.inflight, ev.RequestID)
	case *page.EventFrameNavigated:
		if ev.Frame != nil && ev.Frame.ParentID == "" {
			h.currentURL = ev.Frame.URL
			// Requests from the previous document never finish.
			h.inflight = make(map[network.RequestID]struct{})
		}
	case *page.EventFileChooserOpened:
		upload := schemas.BlockedUpload{
			Timestamp: h.now(),
			URL:       h.currentURL,
			Mode:      string(ev.Mode),
		}
		h.blockedUploads = append(h.blockedUploads, upload)
		h.logger.Info("Blocked native file chooser.", zap.String("url", upload.URL), zap.String("mode", upload.Mode))
	}
}

func (h *Harvester) addConsoleLocked(text string) {
	text = strings.TrimSpace(text)
	if text == "" || len(h.consoleErrors) >= maxBufferedConsole {
		return
	}
	h.consoleErrors = append(h.consoleErrors, text)
}

// Drain returns and clears the buffered console and HTTP errors.
func (h *Harvester) Drain() ([]string, []schemas.HTTPError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	console, httpErrs := h.consoleErrors, h.httpErrors
	h.consoleErrors, h.httpErrors = nil, nil
	return console, httpErrs
}

// DrainBlockedUploads returns and clears the intercepted file chooser log.
func (h *Harvester) DrainBlockedUploads() []schemas.BlockedUpload {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.blockedUploads
	h.blockedUploads = nil
	return out
}

// WaitNetworkIdle blocks until no request has been in flight for quietPeriod.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		h.mu.Lock()
		active := len(h.inflight)
		h.mu.Unlock()

		switch {
		case active > 0:
			idleSince = time.Time{}
		case idleSince.IsZero():
			idleSince = time.Now()
		case time.Since(idleSince) >= quietPeriod:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if len(arg.Value) > 0 {
			raw := string(arg.Value)
			if s, err := strconv.Unquote(raw); err == nil {
				raw = s
			}
			parts = append(parts, raw)
			continue
		}
		if arg.Description != "" {
			parts = append(parts, arg.Description)
		}
	}
	return strings.Join(parts, " ")
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d == nil {
		return ""
	}
	if d.Exception != nil && d.Exception.Description != "" {
		// The description carries the stack; the first line is the message.
		first, _, _ := strings.Cut(d.Exception.Description, "\n")
		return first
	}
	if d.URL != "" {
		return fmt.Sprintf("%s (%s:%d)", d.Text, d.URL, d.LineNumber)
	}
	return d.Text
}
