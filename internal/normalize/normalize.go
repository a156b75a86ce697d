// Package normalize holds the pure helpers shared by every enrichment path:
// price parsing, placeholder-title detection and vendor item-id extraction.
// None of these functions panic or return errors on bad input.
package normalize

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	wwwPrefixRe = regexp.MustCompile(`(?i)^www\.`)
	schemeRe    = regexp.MustCompile(`(?i)^https?://`)
	itmIDRe     = regexp.MustCompile(`(?i)^itm[a-z0-9]+$`)
	// Flipkart pids: three-letter category prefix followed by an uppercase code.
	pidRe      = regexp.MustCompile(`^[A-Z]{3}[A-Z0-9]{10,}$`)
	asinRe     = regexp.MustCompile(`^B0[A-Z0-9]{8}$`)
	hexHashRe  = regexp.MustCompile(`(?i)^[a-f0-9]{8,}$`)
	longHashRe = regexp.MustCompile(`^[A-Za-z0-9]{16,}$`)
	hasDigitRe = regexp.MustCompile(`[0-9]`)
	hasAlphaRe = regexp.MustCompile(`[A-Za-z]`)
	dpPathRe   = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})(?:[/?]|$)`)
)

// ParsePrice extracts a price from free text such as "₹1,299.00". Every
// character other than digits, '.' and '-' is dropped, as is the dot of a
// leading abbreviation like "Rs."; the rest must parse as a finite number and
// is rounded to the nearest whole currency unit.
func ParsePrice(text string) *float64 {
	runes := []rune(text)
	var b strings.Builder
	seenDigit := false
	for i, r := range runes {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			b.WriteRune(r)
		case r == '.':
			if !seenDigit && isAbbrevDot(runes, i) {
				continue
			}
			b.WriteRune(r)
		case r == '-':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || s == "-" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	f := d.Round(0).InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// isAbbrevDot reports whether the dot at i ends a currency abbreviation such
// as "Rs." rather than starting a fraction such as ".5".
func isAbbrevDot(runes []rune, i int) bool {
	if i > 0 && unicode.IsLetter(runes[i-1]) {
		return true
	}
	return i+1 >= len(runes) || runes[i+1] < '0' || runes[i+1] > '9'
}

// PriceOf accepts a decoded JSON value. Numbers pass through unchanged,
// strings go through ParsePrice, anything else yields nil.
func PriceOf(v any) *float64 {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		return finite(f)
	case *float64:
		if x == nil {
			return nil
		}
		return finite(*x)
	case string:
		return ParsePrice(x)
	default:
		return nil
	}
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// IsPlaceholderTitle reports whether a title is really a hostname, a vendor
// item id or an opaque hash rather than a product name.
func IsPlaceholderTitle(title string) bool {
	s := strings.TrimSpace(title)
	if s == "" {
		return true
	}
	if wwwPrefixRe.MatchString(s) || schemeRe.MatchString(s) {
		return true
	}
	if isItemIDLike(s) {
		return true
	}
	if hexHashRe.MatchString(s) {
		return true
	}
	if longHashRe.MatchString(s) && hasDigitRe.MatchString(s) && hasAlphaRe.MatchString(s) {
		return true
	}
	return false
}

// IsPlaceholderPtr treats nil as a placeholder.
func IsPlaceholderPtr(title *string) bool {
	return title == nil || IsPlaceholderTitle(*title)
}

func isItemIDLike(s string) bool {
	return itmIDRe.MatchString(s) || pidRe.MatchString(s) || asinRe.MatchString(s)
}

var itemIDParams = []string{"pid", "itemId", "product_id", "productId"}

// ExtractItemID returns the vendor item identifier for a URL or a bare
// id-like string, or "" when nothing recognizable is present. Lookup order:
// explicit query parameter, then a path segment pattern.
func ExtractItemID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "/") && !strings.Contains(s, "?") {
		if isItemIDLike(s) {
			return s
		}
		return ""
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, k := range itemIDParams {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}

	if m := dpPathRe.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	parts := strings.Split(u.Path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(parts[i])
		if itmIDRe.MatchString(seg) || pidRe.MatchString(seg) {
			return seg
		}
	}
	return ""
}
