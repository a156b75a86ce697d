package history

import (
	"math"
	"sort"

	"pricewatch/pkg/models"
)

// RepairReport describes what Repair would change in one product.
type RepairReport struct {
	ProductID string              `json:"productId"`
	Before    int                 `json:"before"`
	After     int                 `json:"after"`
	Dropped   int                 `json:"dropped"`
	Collapsed int                 `json:"collapsed"`
	Reordered bool                `json:"reordered"`
	History   []models.PricePoint `json:"history"`
	Price     *float64            `json:"price"`
	Changed   bool                `json:"changed"`
}

// Repair rebuilds a price history wholesale: non-finite prices are dropped,
// points are stably sorted by time, consecutive equal prices are collapsed to
// the first point of each run and the top-level price is synced to the last
// remaining point. This is the only operation allowed to shrink a history.
func Repair(p models.Product) RepairReport {
	rep := RepairReport{ProductID: p.ID, Before: len(p.PriceHistory), Price: p.Price}

	kept := make([]models.PricePoint, 0, len(p.PriceHistory))
	for _, pt := range p.PriceHistory {
		if math.IsNaN(pt.Price) || math.IsInf(pt.Price, 0) {
			rep.Dropped++
			continue
		}
		kept = append(kept, pt)
	}

	rep.Reordered = !sort.SliceIsSorted(kept, func(i, j int) bool {
		return kept[i].At.Before(kept[j].At)
	})
	if rep.Reordered {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].At.Before(kept[j].At)
		})
	}

	out := make([]models.PricePoint, 0, len(kept))
	for _, pt := range kept {
		if n := len(out); n > 0 && out[n-1].Price == pt.Price {
			rep.Collapsed++
			continue
		}
		out = append(out, pt)
	}
	rep.History = out
	rep.After = len(out)

	if n := len(out); n > 0 {
		last := out[n-1].Price
		if p.Price == nil || *p.Price != last {
			rep.Price = &last
		}
	}

	rep.Changed = rep.Dropped > 0 || rep.Collapsed > 0 || rep.Reordered || !samePrice(p.Price, rep.Price)
	return rep
}

func samePrice(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
