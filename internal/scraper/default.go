package scraper

import (
	"pricewatch/pkg/logger"
	"pricewatch/pkg/utils"
)

// NewDefaultChain wires the production providers from configuration in
// priority order: affiliate API, headless browser, static HTML.
func NewDefaultChain(cfg utils.Config, log *logger.Logger) *Chain {
	if log == nil {
		log = logger.Nop()
	}
	sc := cfg.Scrape
	af := cfg.Affiliate

	api := NewAffiliateAPIProvider(af.FlipkartAPIBase, af.FlipkartID, af.FlipkartToken, af.APITimeout, af.APIRPS, log.With("provider", "flipkart-affiliate-api"))
	headless := NewHeadlessProvider(&RodRenderer{
		ControlURL:  sc.ControlURL,
		Bin:         sc.BrowserBin,
		UserAgent:   sc.UserAgent,
		NavTimeout:  sc.NavTimeout,
		SettleDelay: sc.SettleDelay,
		Log:         log.With("provider", "headless"),
	}, log.With("provider", "headless"))

	steps := []Step{
		{Provider: api, Timeout: af.APITimeout},
		{Provider: headless, Timeout: sc.CallTimeout},
	}
	if sc.StaticEnabled {
		steps = append(steps, Step{
			Provider: NewStaticHTMLProvider(sc.UserAgent, sc.StaticTimeout, log.With("provider", "static-html")),
			Timeout:  sc.StaticTimeout,
		})
	}
	return NewChain(log.With("component", "resolver"), steps...)
}
