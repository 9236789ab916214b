package avito

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"camera-tracker/config"
	"camera-tracker/utils"
)

const (
	// Content read after navigation: bounded retry, each attempt
	// waiting for the document to settle.
	loadAttempts    = 10
	loadWaitTimeout = 10 * time.Second
	loadRetryPause  = 500 * time.Millisecond
)

// OperatorGate blocks until a human operator confirms the page is ready
// to be read. Avito shows an anti-bot challenge that has to be solved
// by hand in the browser window; solving it can take arbitrarily long,
// so this wait carries no timeout and is kept separate from the bounded
// load-wait retry.
type OperatorGate func(pageURL string)

// StdinGate prompts on stdout and blocks until the operator presses Enter.
func StdinGate(logger *utils.Logger) OperatorGate {
	reader := bufio.NewReader(os.Stdin)
	return func(pageURL string) {
		logger.Info("[avito] Opened %s", pageURL)
		logger.Info("[avito] If a captcha appeared, solve it in the browser window. Do not close the tab.")
		fmt.Print("When the listings are visible — press Enter... ")
		_, _ = reader.ReadString('\n')
	}
}

// Session is an exclusively-owned browser automation session. One
// session drives one search end-to-end; it is stateful (cookies,
// challenge state) and must never be shared between searches.
type Session struct {
	logger *utils.Logger
	gate   OperatorGate

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewSession launches a browser. Navigation carries no timeout ceiling
// because the manual challenge step may take arbitrarily long. Close
// must be called on every exit path.
func NewSession(cfg *config.Config, logger *utils.Logger, gate OperatorGate) *Session {
	chromeBin := findChromeBinary(cfg.ChromeBin)
	if chromeBin != "" {
		logger.Debug("[avito] Using browser binary: %s", chromeBin)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))

	return &Session{
		logger:        logger,
		gate:          gate,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}
}

// Close tears down the browser and its allocator.
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
}

// Fetch navigates the session's tab to pageURL, waits for the operator
// to confirm the page is ready, then reads the page markup with bounded
// retry. Exhausting the retries is fatal for this fetch and the error
// carries the last underlying failure.
func (s *Session) Fetch(pageURL string) (string, error) {
	if err := chromedp.Run(s.browserCtx, chromedp.Navigate(pageURL)); err != nil {
		return "", fmt.Errorf("avito: navigate %s: %w", pageURL, err)
	}

	if s.gate != nil {
		s.gate(pageURL)
	}

	var html string
	retry := &utils.RetryConfig{
		MaxAttempts: loadAttempts,
		Delay:       loadRetryPause,
		Logger:      s.logger,
	}

	err := retry.Do("read page content", func() error {
		attemptCtx, cancel := context.WithTimeout(s.browserCtx, loadWaitTimeout)
		defer cancel()

		return chromedp.Run(attemptCtx,
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
	})
	if err != nil {
		return "", fmt.Errorf("avito: %w", err)
	}

	return html, nil
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
