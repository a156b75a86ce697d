package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
)

// Renderer returns the HTML of a page after client-side rendering.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// RodRenderer drives Chromium through the DevTools protocol. Every Render call
// gets its own browser context and page and tears both down before returning.
type RodRenderer struct {
	// ControlURL connects to an already running browser; when empty a local
	// browser is launched per call.
	ControlURL  string
	Bin         string
	UserAgent   string
	NavTimeout  time.Duration
	SettleDelay time.Duration
	Log         *logger.Logger
}

// releaseTimeout bounds each teardown call. Teardown never uses the render
// context: after a timeout that context is already cancelled and the close
// commands would not reach the browser.
const releaseTimeout = 5 * time.Second

func release(log *logger.Logger, what string, closeFn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		if log == nil {
			log = logger.Nop()
		}
		log.Warn("rod: release failed", "target", what, "err", err)
	}
}

func (r *RodRenderer) Render(ctx context.Context, pageURL string) (html string, err error) {
	defer func() {
		// rod reports some protocol failures by panicking
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rod: panic: %v", rec)
		}
	}()

	controlURL := r.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(true).
			Leakless(true).
			Set("no-sandbox").
			Set("disable-setuid-sandbox").
			Set("disable-dev-shm-usage")
		if r.Bin != "" {
			l = l.Bin(r.Bin)
		}
		defer l.Cleanup()
		defer l.Kill()
		controlURL, err = l.Context(ctx).Launch()
		if err != nil {
			return "", fmt.Errorf("rod: launch: %w", err)
		}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("rod: connect: %w", err)
	}
	if r.ControlURL == "" {
		defer release(r.Log, "browser", func(c context.Context) error { return browser.Context(c).Close() })
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return "", fmt.Errorf("rod: incognito: %w", err)
	}
	defer release(r.Log, "incognito", func(c context.Context) error { return incognito.Context(c).Close() })

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("rod: new page: %w", err)
	}
	defer release(r.Log, "page", func(c context.Context) error { return page.Context(c).Close() })

	if r.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.UserAgent}); err != nil {
			return "", fmt.Errorf("rod: user agent: %w", err)
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1200, Height: 800}); err != nil {
		return "", fmt.Errorf("rod: viewport: %w", err)
	}

	nav := page
	if r.NavTimeout > 0 {
		nav = page.Timeout(r.NavTimeout)
	}
	wait := nav.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := nav.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("rod: navigate: %w", err)
	}
	wait()

	if r.SettleDelay > 0 {
		select {
		case <-time.After(r.SettleDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	html, err = page.HTML()
	if err != nil {
		return "", fmt.Errorf("rod: read html: %w", err)
	}
	return html, nil
}

// HeadlessProvider renders the page in a browser and extracts from the DOM.
type HeadlessProvider struct {
	Renderer Renderer
	Log      *logger.Logger
}

func NewHeadlessProvider(r Renderer, log *logger.Logger) *HeadlessProvider {
	if log == nil {
		log = logger.Nop()
	}
	return &HeadlessProvider{Renderer: r, Log: log}
}

func (p *HeadlessProvider) Name() string { return "headless" }

func (p *HeadlessProvider) Accepts(rawURL, _ string) bool {
	return p.Renderer != nil && isHTTPURL(rawURL)
}

func (p *HeadlessProvider) Resolve(ctx context.Context, rawURL, _ string) *models.PartialSnapshot {
	if !p.Accepts(rawURL, "") {
		return nil
	}
	html, err := p.Renderer.Render(ctx, rawURL)
	if err != nil {
		p.Log.Warn("headless render failed", "url", rawURL, "err", err)
		return nil
	}
	return ExtractHTML(html, rawURL)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
