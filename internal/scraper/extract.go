package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricewatch/internal/normalize"
	"pricewatch/pkg/models"
)

var (
	titleMeta = []string{"og:title", "twitter:title"}
	imageMeta = []string{"og:image", "og:image:url", "twitter:image"}
	priceMeta = []string{"product:price:amount", "og:price:amount"}

	titleSelectors = []string{"h1[itemprop='name']", "span.B_NuCI", "span.VU-ZEz", "#productTitle", "h1"}
	imageSelectors = []string{"img#imgC", "img#landingImage", "img[src*='rukmini']", "img"}
	priceSelectors = []string{
		"._30jeq3._16Jk6d",
		"._30jeq3",
		".Nx9bqj.CxhGGd",
		"#priceblock_ourprice",
		"#priceblock_dealprice",
		".a-price .a-offscreen",
		".price",
		"[data-price]",
	}

	currencyRe = regexp.MustCompile(`(?:₹|Rs\.?|INR)\s?[\d,]+(?:\.\d{1,2})?`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// ExtractHTML reads title, image and price out of a rendered product page:
// Open Graph / Twitter meta first, then retailer DOM selectors, then a
// currency regex over the page text for the price. pageURL resolves relative
// image paths. It returns nil when nothing was found.
func ExtractHTML(html, pageURL string) *models.PartialSnapshot {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return extractDocument(doc.Selection, pageURL)
}

func extractDocument(root *goquery.Selection, pageURL string) *models.PartialSnapshot {
	out := &models.PartialSnapshot{}

	title := firstMeta(root, titleMeta)
	if title == "" {
		title = firstText(root, titleSelectors)
	}
	if title == "" {
		title = collapse(root.Find("title").First().Text())
	}
	out.Title = models.StringPtr(title)

	image := firstMeta(root, imageMeta)
	if image == "" {
		image = firstAttr(root, imageSelectors, "src")
	}
	out.Image = models.StringPtr(absolute(image, pageURL))

	if v := firstMeta(root, priceMeta); v != "" {
		out.Price = normalize.ParsePrice(v)
	}
	if out.Price == nil {
		out.Price = selectorPrice(root)
	}
	if out.Price == nil {
		if m := currencyRe.FindString(root.Find("body").Text()); m != "" {
			out.Price = normalize.ParsePrice(m)
		}
	}

	if out.IsEmpty() {
		return nil
	}
	return out
}

func firstMeta(root *goquery.Selection, names []string) string {
	for _, n := range names {
		for _, attr := range []string{"property", "name"} {
			sel := root.Find(`meta[` + attr + `="` + n + `"]`).First()
			if v, ok := sel.Attr("content"); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func firstText(root *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if t := collapse(root.Find(s).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func firstAttr(root *goquery.Selection, selectors []string, attr string) string {
	for _, s := range selectors {
		if v, ok := root.Find(s).First().Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func selectorPrice(root *goquery.Selection) *float64 {
	for _, s := range priceSelectors {
		sel := root.Find(s).First()
		if sel.Length() == 0 {
			continue
		}
		text := collapse(sel.Text())
		if text == "" {
			text, _ = sel.Attr("data-price")
		}
		if p := normalize.ParsePrice(text); p != nil {
			return p
		}
	}
	return nil
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func absolute(ref, base string) string {
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		if strings.HasPrefix(ref, "//") {
			return "https:" + ref
		}
		return ref
	}
	return b.ResolveReference(r).String()
}
