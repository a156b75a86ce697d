// Package enrich is the single resolve, reconcile and persist unit of work
// shared by the interactive API and the batch backfill.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricewatch/internal/history"
	"pricewatch/internal/lock"
	"pricewatch/internal/products"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
)

// Store is the part of the product repository enrichment needs.
type Store interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
	ApplyReconcile(ctx context.Context, id string, res history.Result) (bool, error)
}

// Resolver produces a snapshot for a product URL. *scraper.Chain implements it.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) models.Snapshot
}

type Options struct {
	Force  bool
	DryRun bool
}

// Outcome describes one enrichment run. In dry-run mode Product shows what
// would have been stored and Applied is false.
type Outcome struct {
	Product  *models.Product `json:"product"`
	Snapshot models.Snapshot `json:"snapshot"`
	Result   history.Result  `json:"result"`
	Applied  bool            `json:"applied"`
	Appended bool            `json:"appended"`
}

// Changed reports whether the run produced anything to persist.
func (o *Outcome) Changed() bool {
	return o != nil && !o.Result.Empty()
}

type Service struct {
	Store    Store
	Resolver Resolver
	Locker   lock.Locker
	Log      *logger.Logger
	Now      func() time.Time
}

func NewService(store Store, resolver Resolver, locker lock.Locker, log *logger.Logger) *Service {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		Store:    store,
		Resolver: resolver,
		Locker:   locker,
		Log:      log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enrich runs one product through the pipeline while holding its lock. The
// product is re-read under the lock so decisions are made against the latest
// stored state. Returns lock.ErrLocked when another run holds the product and
// products.ErrNotFound for unknown ids.
func (s *Service) Enrich(ctx context.Context, id string, opts Options) (*Outcome, error) {
	release, err := s.Locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}
	if p == nil {
		return nil, products.ErrNotFound
	}

	snap := s.Resolver.Resolve(ctx, p.URL)
	res := history.Reconcile(*p, snap, history.Options{Force: opts.Force}, s.Now())
	out := &Outcome{Product: p, Snapshot: snap, Result: res}

	log := s.Log.With("product_id", id, "url", p.URL)
	if res.Empty() {
		log.Debug("no change")
		return out, nil
	}
	if opts.DryRun {
		log.Info("dry run: would update", "updates", res.Updates, "append", res.HistoryAppend)
		history.Apply(p, res)
		return out, nil
	}

	appended, err := s.Store.ApplyReconcile(ctx, id, res)
	if err != nil {
		return out, fmt.Errorf("persist product %s: %w", id, err)
	}
	out.Applied = true
	out.Appended = appended
	if !appended {
		res.HistoryAppend = nil
	}
	history.Apply(p, res)
	log.Info("product updated", "updates", res.Updates, "appended", appended)
	return out, nil
}

// Refresh is the interactive entry point: it enriches and returns the stored
// product. A product that is already being enriched is returned as stored.
func (s *Service) Refresh(ctx context.Context, id string, force bool) (*models.Product, error) {
	out, err := s.Enrich(ctx, id, Options{Force: force})
	if errors.Is(err, lock.ErrLocked) {
		return s.Store.FindByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return out.Product, nil
}
