// Package history decides how a freshly resolved snapshot is merged into a
// stored product and how a damaged price history is repaired.
//
// Reconcile is pure: it reads the clock only through its now argument and
// never touches storage. Callers persist the returned Result.
package history

import (
	"time"

	"pricewatch/internal/normalize"
	"pricewatch/pkg/models"
)

// Options tune a single reconciliation.
type Options struct {
	// Force lets snapshot values replace existing good data.
	Force bool
}

// Updates are the top-level product fields to set. Nil means unchanged.
type Updates struct {
	Title *string  `json:"title,omitempty"`
	Image *string  `json:"image,omitempty"`
	Price *float64 `json:"price,omitempty"`
}

// Empty reports whether no field is set.
func (u Updates) Empty() bool {
	return u.Title == nil && u.Image == nil && u.Price == nil
}

// Result is the outcome of Reconcile.
type Result struct {
	Updates       Updates            `json:"updates"`
	HistoryAppend *models.PricePoint `json:"historyAppend,omitempty"`
}

// Empty reports whether nothing needs to be persisted. An empty result is a
// successful no-op.
func (r Result) Empty() bool {
	return r.Updates.Empty() && r.HistoryAppend == nil
}

// Reconcile compares snap against p and returns the changes worth
// persisting. Fields are decided in the order title, image, price.
func Reconcile(p models.Product, snap models.Snapshot, opts Options, now time.Time) Result {
	var res Result

	if t := acceptTitle(p.Title, snap.Title, opts.Force); t != nil {
		res.Updates.Title = t
	}
	if img := acceptImage(p.Image, snap.Image, opts.Force); img != nil {
		res.Updates.Image = img
	}

	if snap.Price == nil {
		return res
	}
	price := *snap.Price
	if p.Price != nil && *p.Price == price && !opts.Force {
		return res
	}
	res.Updates.Price = &price

	last, ok := p.LastPoint()
	if ok && last.Price == price {
		// top-level price is still synced, the history run is not extended
		return res
	}
	at := now.UTC()
	if ok && at.Before(last.At) {
		at = last.At
	}
	res.HistoryAppend = &models.PricePoint{At: at, Price: price}
	return res
}

func acceptTitle(current, candidate *string, force bool) *string {
	if candidate == nil || normalize.IsPlaceholderTitle(*candidate) {
		return nil
	}
	if current != nil && *current == *candidate {
		return nil
	}
	if !force && !normalize.IsPlaceholderPtr(current) {
		return nil
	}
	t := *candidate
	return &t
}

func acceptImage(current, candidate *string, force bool) *string {
	if candidate == nil || *candidate == "" {
		return nil
	}
	hasCurrent := current != nil && *current != ""
	if hasCurrent && (!force || *current == *candidate) {
		return nil
	}
	img := *candidate
	return &img
}

// Apply writes r into p in memory, mirroring what storage does with it.
func Apply(p *models.Product, r Result) {
	if r.Updates.Title != nil {
		p.Title = r.Updates.Title
	}
	if r.Updates.Image != nil {
		p.Image = r.Updates.Image
	}
	if r.Updates.Price != nil {
		p.Price = r.Updates.Price
	}
	if r.HistoryAppend != nil {
		p.PriceHistory = append(p.PriceHistory, *r.HistoryAppend)
	}
}
