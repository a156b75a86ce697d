// Package affiliate maps canonical product URLs to retailer-tagged
// outbound URLs.
package affiliate

import (
	"net/url"
	"strings"
)

// Rule injects one query parameter for every host under Domain.
type Rule struct {
	Domain string
	Param  string
	Value  string
}

// Deriver holds the vendor table. It is immutable after construction and
// safe for concurrent use.
type Deriver struct {
	rules []Rule
}

// Tags are the configured affiliate identifiers per vendor.
type Tags struct {
	FlipkartID string
	AmazonTag  string
}

// NewDeriver builds the static vendor table. Vendors without a configured
// identifier keep their entry but never modify URLs.
func NewDeriver(tags Tags) *Deriver {
	return &Deriver{rules: []Rule{
		{Domain: "flipkart.com", Param: "affid", Value: strings.TrimSpace(tags.FlipkartID)},
		{Domain: "amazon.in", Param: "tag", Value: strings.TrimSpace(tags.AmazonTag)},
		{Domain: "amazon.com", Param: "tag", Value: strings.TrimSpace(tags.AmazonTag)},
	}}
}

// Derive returns the outbound URL for raw. The input is returned unchanged
// when no vendor matches, no identifier is configured, the parameter is
// already present, or raw is not an absolute URL.
func (d *Deriver) Derive(raw string) string {
	if d == nil {
		return raw
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	for _, r := range d.rules {
		if !hostMatches(host, r.Domain) {
			continue
		}
		if r.Value == "" {
			return raw
		}
		q, err := url.ParseQuery(u.RawQuery)
		if err != nil || q.Has(r.Param) {
			return raw
		}
		pair := url.QueryEscape(r.Param) + "=" + url.QueryEscape(r.Value)
		if u.RawQuery == "" {
			u.RawQuery = pair
		} else {
			u.RawQuery = u.RawQuery + "&" + pair
		}
		return u.String()
	}
	return raw
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
