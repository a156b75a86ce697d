package scraper

import (
	"context"
	"math"
	"strings"
	"time"

	"pricewatch/internal/normalize"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
)

// Provider is implemented by each lookup (affiliate API / headless browser /
// static HTML). Resolve never fails: every internal fault becomes nil.
type Provider interface {
	Name() string
	// Accepts reports whether the provider can say anything about the URL
	// without doing any I/O.
	Accepts(rawURL, itemID string) bool
	Resolve(ctx context.Context, rawURL, itemID string) *models.PartialSnapshot
}

// Step is a provider with its own call bound.
type Step struct {
	Provider Provider
	Timeout  time.Duration
}

// Chain calls providers in order and merges their results field by field.
// Earlier providers win; the chain stops once title, image and price are all
// known.
type Chain struct {
	Steps []Step
	Log   *logger.Logger
}

// NewChain creates a Chain with the given steps in priority order.
func NewChain(log *logger.Logger, steps ...Step) *Chain {
	if log == nil {
		log = logger.Nop()
	}
	return &Chain{Steps: steps, Log: log}
}

// Resolve builds a Snapshot for rawURL. A snapshot with every field nil is a
// valid result.
func (c *Chain) Resolve(ctx context.Context, rawURL string) models.Snapshot {
	var snap models.Snapshot
	itemID := normalize.ExtractItemID(rawURL)

	for _, st := range c.Steps {
		if ctx.Err() != nil {
			break
		}
		if st.Provider == nil || !st.Provider.Accepts(rawURL, itemID) {
			continue
		}
		part := clean(c.call(ctx, st, rawURL, itemID))
		if part.IsEmpty() {
			continue
		}
		merge(&snap, part)
		c.Log.Debug("provider result",
			"provider", st.Provider.Name(),
			"url", rawURL,
			"title", part.Title != nil,
			"image", part.Image != nil,
			"price", part.Price != nil,
		)
		if snap.Complete() {
			break
		}
	}
	return snap
}

// call runs one provider under its timeout. If the provider ignores its
// context the chain stops waiting anyway; the goroutine finishes on its own
// and its result is discarded.
func (c *Chain) call(ctx context.Context, st Step, rawURL, itemID string) *models.PartialSnapshot {
	name := st.Provider.Name()
	cctx := ctx
	if st.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, st.Timeout)
		defer cancel()
	}

	done := make(chan *models.PartialSnapshot, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.Log.Error("provider panic", "provider", name, "url", rawURL, "panic", r)
				done <- nil
			}
		}()
		done <- st.Provider.Resolve(cctx, rawURL, itemID)
	}()

	select {
	case part := <-done:
		return part
	case <-cctx.Done():
		c.Log.Warn("provider timed out", "provider", name, "url", rawURL, "err", cctx.Err())
		return nil
	}
}

// merge fills snapshot fields that are still nil.
func merge(snap *models.Snapshot, part *models.PartialSnapshot) {
	if snap.Title == nil && part.Title != nil {
		snap.Title = part.Title
	}
	if snap.Image == nil && part.Image != nil {
		snap.Image = part.Image
	}
	if snap.Price == nil && part.Price != nil {
		snap.Price = part.Price
	}
}

// clean drops blank strings and non-finite prices so that they never shadow
// a later provider's value.
func clean(p *models.PartialSnapshot) *models.PartialSnapshot {
	if p == nil {
		return nil
	}
	out := &models.PartialSnapshot{}
	if p.Title != nil {
		out.Title = models.StringPtr(strings.TrimSpace(*p.Title))
	}
	if p.Image != nil {
		out.Image = models.StringPtr(strings.TrimSpace(*p.Image))
	}
	if p.Price != nil && !math.IsNaN(*p.Price) && !math.IsInf(*p.Price, 0) {
		v := *p.Price
		out.Price = &v
	}
	return out
}
