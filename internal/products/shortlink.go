package products

import (
	"context"
	"net/http"
	"strings"
	"time"

	"pricewatch/internal/normalize"
)

// ShortLinkExpander resolves retailer share links (dl.flipkart.com/...) to
// the product URL they point at by reading a single redirect.
type ShortLinkExpander struct {
	Client *http.Client
	Hosts  []string
}

func NewShortLinkExpander(timeout time.Duration) *ShortLinkExpander {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ShortLinkExpander{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Hosts: []string{"dl.flipkart.com", "fkrt.it", "amzn.to", "amzn.in"},
	}
}

// Expand returns the redirect target of a known short link, or raw unchanged
// when raw is not a short link or the lookup fails.
func (e *ShortLinkExpander) Expand(ctx context.Context, raw string) string {
	if e == nil || !e.isShort(raw) {
		return raw
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return raw
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return raw
	}
	resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		return raw
	}
	loc, err := resp.Location()
	if err != nil {
		return raw
	}
	out, err := normalize.NormalizeURL(loc.String())
	if err != nil {
		return raw
	}
	return out
}

func (e *ShortLinkExpander) isShort(raw string) bool {
	host := normalize.Hostname(raw)
	for _, h := range e.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
