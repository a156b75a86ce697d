package scraper

import (
	"context"
	"time"

	"github.com/gocolly/colly/v2"

	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
)

// StaticHTMLProvider fetches the raw server-rendered HTML without a browser
// and runs the same extractor over it. It is the last fallback: cheap, but
// blind to anything rendered client-side.
type StaticHTMLProvider struct {
	UserAgent string
	Timeout   time.Duration
	Log       *logger.Logger
}

func NewStaticHTMLProvider(userAgent string, timeout time.Duration, log *logger.Logger) *StaticHTMLProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StaticHTMLProvider{UserAgent: userAgent, Timeout: timeout, Log: log}
}

func (s *StaticHTMLProvider) Name() string { return "static-html" }

func (s *StaticHTMLProvider) Accepts(rawURL, _ string) bool {
	return isHTTPURL(rawURL)
}

func (s *StaticHTMLProvider) Resolve(ctx context.Context, rawURL, _ string) *models.PartialSnapshot {
	if !isHTTPURL(rawURL) {
		return nil
	}

	// one collector per call: colly collectors remember visited URLs
	opts := []colly.CollectorOption{colly.StdlibContext(ctx)}
	if s.UserAgent != "" {
		opts = append(opts, colly.UserAgent(s.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(s.Timeout)

	var out *models.PartialSnapshot
	c.OnHTML("html", func(e *colly.HTMLElement) {
		if out == nil {
			out = extractDocument(e.DOM, e.Request.URL.String())
		}
	})
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Accept-Language", "en-IN,en;q=0.9")
	})

	if err := c.Visit(rawURL); err != nil {
		s.Log.Warn("static fetch failed", "url", rawURL, "err", err)
		return nil
	}
	return out
}
