package products

import (
	"context"
	"fmt"

	"pricewatch/internal/affiliate"
	"pricewatch/internal/normalize"
	"pricewatch/pkg/models"
)

// Track canonicalizes raw, expands known short links and returns the stored
// product for it, creating the row on first sight. The affiliate URL is
// stored only when a vendor rule applies.
func Track(ctx context.Context, repo *Repo, deriver *affiliate.Deriver, expander *ShortLinkExpander, raw string) (*models.Product, bool, error) {
	canonical, err := normalize.NormalizeURL(raw)
	if err != nil {
		return nil, false, err
	}
	if expanded := expander.Expand(ctx, canonical); expanded != canonical {
		if canonical, err = normalize.NormalizeURL(expanded); err != nil {
			return nil, false, fmt.Errorf("expanded link: %w", err)
		}
	}

	var aff *string
	if derived := deriver.Derive(canonical); derived != canonical {
		aff = &derived
	}
	return repo.CreateOrGet(ctx, canonical, aff)
}
