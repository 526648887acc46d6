// Package capture renders the monitored page in a headless browser and saves
// an image of the region of interest as change evidence.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/logger"
	"ticketwatch/pkg/serrors"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// DefaultPath is where the evidence image is written when none is configured.
const DefaultPath = "tickets_page.png"

// Options configure the browser capture.
type Options struct {
	// Path of the PNG file, overwritten on every capture.
	Path string
	// BrowserURL is the DevTools endpoint of a running browser. Empty launches
	// a local headless one for each capture.
	BrowserURL string
	// Stealth hides the usual automation fingerprints from the page.
	Stealth bool
	// Timeout bounds a whole capture, browser start included.
	Timeout time.Duration
}

// NewOptions maps the capture settings out of the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		Path:       cfg.Capture.Path,
		BrowserURL: cfg.Capture.BrowserURL,
		Stealth:    cfg.Capture.Stealth.Bool(),
		Timeout:    cfg.Capture.Timeout,
	}
}

// BrowserCapturer takes element screenshots with go-rod.
type BrowserCapturer struct {
	options Options
}

// New creates a BrowserCapturer.
func New(options Options) *BrowserCapturer {
	if options.Path == "" {
		options.Path = DefaultPath
	}
	if options.Timeout <= 0 {
		options.Timeout = 45 * time.Second
	}

	return &BrowserCapturer{options: options}
}

// Path returns the file the evidence is written to.
func (c *BrowserCapturer) Path() string { return c.options.Path }

// Capture loads url, waits for selector and writes a screenshot of the first
// matching element. It returns the path of the written image. Every failure
// is of kind serrors.ErrCapture.
func (c *BrowserCapturer) Capture(ctx context.Context, url, selector string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	browser, closeBrowser, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer closeBrowser()

	page, err := c.open(browser)
	if err != nil {
		return "", serrors.Wrap(serrors.ErrCapture, err, "could not open tab")
	}
	defer func() {
		_ = page.Close()
	}()

	page = page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return "", captureError(ctx, err, "could not navigate to %s", url)
	}
	if err := page.WaitLoad(); err != nil {
		logger.Warn(ctx, "page load not confirmed", zap.Error(err))
	}

	el, err := page.Element(selector)
	if err != nil {
		return "", captureError(ctx, err, "region %q not found", selector)
	}

	img, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return "", captureError(ctx, err, "could not screenshot region")
	}

	if err := writeFile(c.options.Path, img); err != nil {
		return "", serrors.Wrap(serrors.ErrCapture, err, "could not save evidence")
	}

	logger.Debug(ctx, "evidence captured", zap.String("path", c.options.Path), zap.Int("bytes", len(img)))

	return c.options.Path, nil
}

func (c *BrowserCapturer) connect(ctx context.Context) (*rod.Browser, func(), error) {
	controlURL := c.options.BrowserURL

	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Context(ctx).Headless(true).Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, nil, captureError(ctx, err, "could not launch browser")
		}
		controlURL = u
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}

		return nil, nil, captureError(ctx, err, "could not connect to browser")
	}

	closeBrowser := func() {
		// a shared remote browser is left running
		if l != nil {
			_ = browser.Close()
			l.Kill()
		}
	}

	return browser, closeBrowser, nil
}

func (c *BrowserCapturer) open(browser *rod.Browser) (*rod.Page, error) {
	if c.options.Stealth {
		return stealth.Page(browser)
	}

	return browser.Page(proto.TargetCreateTarget{})
}

// captureError tags err as a capture error and, once ctx has expired, also
// as a timeout.
func captureError(ctx context.Context, err error, msgFmt string, args ...any) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = serrors.Wrap(serrors.ErrTimeout, err, "timed out")
	}

	return serrors.Wrap(serrors.ErrCapture, err, msgFmt, args...)
}

// writeFile replaces path with data through a temporary file in the same
// directory, so a reader never sees a partial image.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".capture-*.png")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("could not write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not replace %s: %w", path, err)
	}

	return nil
}
