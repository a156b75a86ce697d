// Package batch drives a bounded set of products through enrichment with a
// polite delay between items.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"pricewatch/internal/enrich"
	"pricewatch/internal/lock"
	"pricewatch/internal/normalize"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
)

// Selector picks which products a run considers.
type Selector struct {
	Name  string
	Match func(models.Product) bool
}

var (
	MissingMetadata = Selector{Name: "missing-metadata", Match: func(p models.Product) bool {
		return normalize.IsPlaceholderPtr(p.Title) || p.Image == nil || *p.Image == ""
	}}
	MissingPrice = Selector{Name: "missing-price", Match: func(p models.Product) bool {
		return p.Price == nil
	}}
	All = Selector{Name: "all", Match: func(models.Product) bool { return true }}
)

// SelectorByName resolves a preset selector.
func SelectorByName(name string) (Selector, error) {
	for _, s := range []Selector{MissingMetadata, MissingPrice, All} {
		if s.Name == name {
			return s, nil
		}
	}
	return Selector{}, fmt.Errorf("unknown selector %q", name)
}

// Source lists candidate products. *products.Repo implements it; match is
// evaluated on product fields before history is loaded.
type Source interface {
	Scan(ctx context.Context, match func(models.Product) bool, limit int) ([]models.Product, error)
}

// Enricher runs one product. *enrich.Service implements it.
type Enricher interface {
	Enrich(ctx context.Context, id string, opts enrich.Options) (*enrich.Outcome, error)
}

type Options struct {
	Limit       int
	Apply       bool
	Force       bool
	DelayMin    time.Duration
	DelayJitter time.Duration
}

type ItemStatus string

const (
	StatusChanged   ItemStatus = "changed"
	StatusUnchanged ItemStatus = "unchanged"
	StatusSkipped   ItemStatus = "skipped"
	StatusFailed    ItemStatus = "failed"
)

type Item struct {
	ID      string          `json:"id"`
	URL     string          `json:"url"`
	Status  ItemStatus      `json:"status"`
	Outcome *enrich.Outcome `json:"outcome,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type Report struct {
	Selector  string `json:"selector"`
	Applied   bool   `json:"applied"`
	Scanned   int    `json:"scanned"`
	Changed   int    `json:"changed"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Items     []Item `json:"items"`
}

// DefaultMaxLimit is the batch ceiling when none is configured.
const DefaultMaxLimit = 50

type Runner struct {
	Source   Source
	Enricher Enricher
	Log      *logger.Logger
	// MaxLimit caps every run. Options.Limit <= 0 or above it means MaxLimit.
	MaxLimit int
	// Sleep waits between items; it returns early with ctx.Err() on cancel.
	Sleep func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex // guards rnd; one Runner serves concurrent runs
	rnd *rand.Rand
}

func NewRunner(src Source, enricher Enricher, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		Source:   src,
		Enricher: enricher,
		Log:      log,
		MaxLimit: DefaultMaxLimit,
		Sleep:    sleepCtx,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run enriches up to opts.Limit products matched by sel, never more than
// MaxLimit. Dry-run is the default; opts.Apply persists. One item's failure
// never stops the run; only a failing product scan or a cancelled context
// ends it early.
func (r *Runner) Run(ctx context.Context, sel Selector, opts Options) (*Report, error) {
	if sel.Match == nil {
		sel = All
	}
	rep := &Report{Selector: sel.Name, Applied: opts.Apply, Items: []Item{}}
	opts.Limit = r.limit(opts.Limit)

	candidates, err := r.Source.Scan(ctx, sel.Match, opts.Limit)
	if err != nil {
		return rep, fmt.Errorf("select products: %w", err)
	}
	rep.Scanned = len(candidates)
	r.Log.Info("batch start", "selector", sel.Name, "candidates", len(candidates), "limit", opts.Limit, "apply", opts.Apply, "force", opts.Force)

	for i, p := range candidates {
		if i > 0 {
			if err := r.Sleep(ctx, r.delay(opts)); err != nil {
				return rep, err
			}
		}
		item := r.runOne(ctx, p, opts)
		rep.Items = append(rep.Items, item)
		switch item.Status {
		case StatusChanged:
			rep.Changed++
		case StatusUnchanged:
			rep.Unchanged++
		case StatusSkipped:
			rep.Skipped++
		case StatusFailed:
			rep.Failed++
		}
	}

	r.Log.Info("batch done",
		"selector", sel.Name,
		"scanned", rep.Scanned,
		"changed", rep.Changed,
		"unchanged", rep.Unchanged,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
	)
	return rep, nil
}

func (r *Runner) runOne(ctx context.Context, p models.Product, opts Options) (item Item) {
	item = Item{ID: p.ID, URL: p.URL}
	log := r.Log.With("product_id", p.ID, "url", p.URL)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("batch item panic", "panic", rec)
			item.Status = StatusFailed
			item.Error = fmt.Sprint(rec)
		}
	}()

	out, err := r.Enricher.Enrich(ctx, p.ID, enrich.Options{Force: opts.Force, DryRun: !opts.Apply})
	item.Outcome = out
	switch {
	case errors.Is(err, lock.ErrLocked):
		log.Info("skipped: enrichment already running")
		item.Status = StatusSkipped
	case err != nil:
		log.Error("batch item failed", "err", err)
		item.Status = StatusFailed
		item.Error = err.Error()
	case out.Changed():
		item.Status = StatusChanged
	default:
		item.Status = StatusUnchanged
	}
	return item
}

func (r *Runner) limit(requested int) int {
	ceiling := r.MaxLimit
	if ceiling <= 0 {
		ceiling = DefaultMaxLimit
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// delay is the fixed minimum plus a uniform random share of the jitter.
func (r *Runner) delay(opts Options) time.Duration {
	d := opts.DelayMin
	if d < 0 {
		d = 0
	}
	if opts.DelayJitter > 0 {
		r.mu.Lock()
		if r.rnd == nil {
			r.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		d += time.Duration(r.rnd.Int63n(int64(opts.DelayJitter) + 1))
		r.mu.Unlock()
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
