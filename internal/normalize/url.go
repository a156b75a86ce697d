package normalize

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var ErrInvalidURL = errors.New("invalid url")

// NormalizeURL turns user input into the canonical URL used as the product
// dedup key: trimmed, https assumed when no scheme is given.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidURL
	}
	if !schemeRe.MatchString(s) {
		if strings.Contains(s, "://") {
			return "", ErrInvalidURL
		}
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || strings.ContainsAny(u.Host, " \t") {
		return "", ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Hostname returns the lowercased host of raw without a leading "www.",
// or "" when raw is not an absolute URL.
func Hostname(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var (
	slugCleanRe    = regexp.MustCompile(`[^a-zA-Z0-9\-_\s]`)
	slugSplitRe    = regexp.MustCompile(`[-_\s]+`)
	priceInIndiaRe = regexp.MustCompile(`(?i)\s*\bPrice in India.*$`)
)

// TitleFromURLSlug derives a readable title from a product URL path, e.g.
// /vivo-t4x-5g-marine-blue/p/itm123 -> "Vivo T4x 5g Marine Blue".
func TitleFromURLSlug(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}

	slug := ""
	pIndex := -1
	for i, p := range parts {
		if p == "p" || p == "dp" {
			pIndex = i
			break
		}
	}
	if pIndex > 0 {
		slug = parts[pIndex-1]
	} else {
		for i := len(parts) - 1; i >= 0; i-- {
			seg := parts[i]
			if !isItemIDLike(seg) && len(seg) > 2 {
				slug = seg
				break
			}
		}
		if slug == "" {
			slug = parts[0]
		}
	}

	if decoded, err := url.PathUnescape(slug); err == nil {
		slug = decoded
	}
	slug = slugCleanRe.ReplaceAllString(slug, "")
	var words []string
	for _, w := range slugSplitRe.Split(slug, -1) {
		if w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return ""
	}
	return titleCase(words)
}

func titleCase(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		if len(rs) == 1 {
			out[i] = strings.ToUpper(w)
			continue
		}
		rs[0] = unicode.ToUpper(rs[0])
		out[i] = string(rs)
	}
	return strings.TrimSpace(strings.Join(out, " "))
}

// DisplayTitle picks what to show for a product: the stored title when it is
// a real one (with retailer SEO suffixes removed), otherwise a title derived
// from the URL, the hostname, or "Untitled product".
func DisplayTitle(title *string, rawURL string) string {
	if title != nil {
		candidate := strings.TrimSpace(*title)
		if !IsPlaceholderTitle(candidate) {
			cleaned := strings.TrimSpace(priceInIndiaRe.ReplaceAllString(candidate, ""))
			if !IsPlaceholderTitle(cleaned) {
				return cleaned
			}
		}
	}
	if t := TitleFromURLSlug(rawURL); t != "" {
		return t
	}
	if h := Hostname(rawURL); h != "" {
		return h
	}
	return "Untitled product"
}
