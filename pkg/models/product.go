package models

import "time"

// Product is one tracked item as stored by the products table.
//
// Title, Image and Price are nil until enrichment finds a value. A nil Price
// and a zero Price are different states and both are kept as-is.
type Product struct {
	ID           string       `json:"id"`
	URL          string       `json:"url"`
	Title        *string      `json:"title"`
	Image        *string      `json:"image"`
	Price        *float64     `json:"price"`
	PriceHistory []PricePoint `json:"priceHistory"`
	AffiliateURL *string      `json:"affiliateUrl,omitempty"`
	WatchCount   int          `json:"watchCount"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// PricePoint is one entry of a product's price history.
type PricePoint struct {
	At    time.Time `json:"at"`
	Price float64   `json:"price"`
}

// LastPoint returns the most recent history point, if any.
func (p Product) LastPoint() (PricePoint, bool) {
	if len(p.PriceHistory) == 0 {
		return PricePoint{}, false
	}
	return p.PriceHistory[len(p.PriceHistory)-1], true
}

// PartialSnapshot is what a single provider managed to find for a URL.
type PartialSnapshot struct {
	Title *string  `json:"title,omitempty"`
	Image *string  `json:"image,omitempty"`
	Price *float64 `json:"price,omitempty"`
}

// IsEmpty reports whether no field was found.
func (p *PartialSnapshot) IsEmpty() bool {
	return p == nil || (p.Title == nil && p.Image == nil && p.Price == nil)
}

// Snapshot is the resolved {title, image, price} triple for one URL at one
// point in time. All-nil is a valid result.
type Snapshot struct {
	Title *string  `json:"title"`
	Image *string  `json:"image"`
	Price *float64 `json:"price"`
}

// Complete reports whether every field holds a value.
func (s Snapshot) Complete() bool {
	return s.Title != nil && s.Image != nil && s.Price != nil
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 {
	return &f
}

// Deref returns *s or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
