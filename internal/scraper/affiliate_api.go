package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/internal/normalize"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
)

const defaultFlipkartAPIBase = "https://affiliate-api.flipkart.net"

// AffiliateAPIProvider looks products up through the Flipkart affiliate
// product API. Requests are paced by a process-wide limiter.
type AffiliateAPIProvider struct {
	Client    *http.Client
	BaseURL   string
	AffID     string
	Token     string
	Limiter   *rate.Limiter
	Log       *logger.Logger
	endpoints []string
}

// NewAffiliateAPIProvider builds the provider. An empty id or token leaves it
// permanently inert.
func NewAffiliateAPIProvider(baseURL, affID, token string, timeout time.Duration, rps float64, log *logger.Logger) *AffiliateAPIProvider {
	if baseURL == "" {
		baseURL = defaultFlipkartAPIBase
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if rps <= 0 {
		rps = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AffiliateAPIProvider{
		Client:  &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
		AffID:   strings.TrimSpace(affID),
		Token:   strings.TrimSpace(token),
		Limiter: rate.NewLimiter(rate.Limit(rps), 1),
		Log:     log,
		endpoints: []string{
			"/affiliate/1.0/product.json?id=%s",
			"/affiliate/product/json?id=%s",
			"/affiliate/product/json?itemId=%s",
		},
	}
}

func (p *AffiliateAPIProvider) Name() string { return "flipkart-affiliate-api" }

func (p *AffiliateAPIProvider) configured() bool {
	return p.AffID != "" && p.Token != ""
}

func (p *AffiliateAPIProvider) Accepts(rawURL, itemID string) bool {
	if !p.configured() || itemID == "" {
		return false
	}
	host := normalize.Hostname(rawURL)
	return host == "flipkart.com" || strings.HasSuffix(host, ".flipkart.com")
}

func (p *AffiliateAPIProvider) Resolve(ctx context.Context, rawURL, itemID string) *models.PartialSnapshot {
	if !p.configured() || itemID == "" {
		return nil
	}
	for _, ep := range p.endpoints {
		apiURL := p.BaseURL + fmt.Sprintf(ep, url.QueryEscape(itemID))
		base, err := p.fetch(ctx, apiURL)
		if err != nil {
			p.Log.Warn("affiliate api request failed", "item_id", itemID, "err", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if len(base) == 0 {
			continue
		}
		if snap := snapshotFromAPI(base); !snap.IsEmpty() {
			return snap
		}
	}
	return nil
}

func (p *AffiliateAPIProvider) fetch(ctx context.Context, apiURL string) (map[string]any, error) {
	if err := p.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("flipkart: rate wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("flipkart: build request: %w", err)
	}
	req.Header.Set("Fk-Affiliate-Id", p.AffID)
	req.Header.Set("Fk-Affiliate-Token", p.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flipkart: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("flipkart: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("flipkart: status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("flipkart: decode: %w", err)
	}
	return baseObject(payload), nil
}

// baseObject picks the product object out of the payload shapes seen in
// practice, falling back to the payload itself.
func baseObject(payload map[string]any) map[string]any {
	for _, k := range []string{"productBaseInfoV1", "product_base_info_v1", "product", "root"} {
		if m, ok := payload[k].(map[string]any); ok && len(m) > 0 {
			return m
		}
	}
	return payload
}

var (
	apiTitleKeys   = []string{"title", "name", "product_title"}
	apiImageKeys   = []string{"imageUrl", "image_url", "image"}
	apiSellingKeys = []string{"flipkartSpecialPrice", "flipkartSellingPrice", "flipkart_selling_price", "flipkartSellingPriceV1", "sellingPrice"}
	apiMRPKeys     = []string{"maximumRetailPrice", "mrp", "maximum_retail_price"}
)

func snapshotFromAPI(base map[string]any) *models.PartialSnapshot {
	out := &models.PartialSnapshot{}

	for _, k := range apiTitleKeys {
		if s, ok := base[k].(string); ok && strings.TrimSpace(s) != "" {
			out.Title = models.StringPtr(strings.TrimSpace(s))
			break
		}
	}

	out.Image = models.StringPtr(imageFromAPI(base))

	for _, group := range [][]string{apiSellingKeys, apiMRPKeys, {"price"}} {
		for _, k := range group {
			if pr := amountOf(base[k]); pr != nil {
				out.Price = pr
				break
			}
		}
		if out.Price != nil {
			break
		}
	}
	return out
}

func imageFromAPI(base map[string]any) string {
	if imgs, ok := base["imageUrls"].(map[string]any); ok && len(imgs) > 0 {
		if s := firstString(imgs["200x200"]); s != "" {
			return s
		}
		keys := make([]string, 0, len(imgs))
		for k := range imgs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := firstString(imgs[k]); s != "" {
				return s
			}
		}
	}
	for _, k := range apiImageKeys {
		if s := firstString(base[k]); s != "" {
			return s
		}
	}
	return ""
}

func firstString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case []any:
		if len(x) > 0 {
			return firstString(x[0])
		}
	}
	return ""
}

// amountOf reads {"amount": ...}, {"value": ...} or a bare scalar.
func amountOf(v any) *float64 {
	if m, ok := v.(map[string]any); ok {
		if pr := normalize.PriceOf(m["amount"]); pr != nil {
			return pr
		}
		return normalize.PriceOf(m["value"])
	}
	return normalize.PriceOf(v)
}
