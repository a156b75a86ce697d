// Command import-csv tracks every URL listed in a CSV file. Optional title,
// image and price columns seed the product through the same reconcile rules
// enrichment uses; --enrich additionally runs the provider chain on each new
// product.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pricewatch/internal/affiliate"
	"pricewatch/internal/enrich"
	"pricewatch/internal/history"
	"pricewatch/internal/normalize"
	"pricewatch/internal/products"
	"pricewatch/pkg/database"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
	"pricewatch/pkg/utils"
)

type importer struct {
	repo     *products.Repo
	deriver  *affiliate.Deriver
	expander *products.ShortLinkExpander
	enricher *enrich.Service
	log      *logger.Logger
	now      func() time.Time
}

type importStats struct {
	Rows, Created, Existing, Seeded, Enriched, Invalid int
}

func main() {
	_ = godotenv.Load()
	cfg := utils.Load()

	var (
		in       = flag.String("in", "data/products.csv", "input CSV path (header must include url)")
		doEnrich = flag.Bool("enrich", false, "run the provider chain on newly created products")
		expand   = flag.Bool("expand", true, "resolve retailer short links before tracking")
	)
	flag.Parse()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenAndMigrate(database.DefaultConfig())
	if err != nil {
		log.Fatal("db open failed", "err", err)
	}
	defer db.Close()

	repo := products.NewRepo(db)
	imp := &importer{
		repo:    repo,
		deriver: affiliate.NewDeriver(affiliate.Tags{FlipkartID: cfg.Affiliate.FlipkartID, AmazonTag: cfg.Affiliate.AmazonTag}),
		log:     log,
		now:     time.Now,
	}
	if *expand {
		imp.expander = products.NewShortLinkExpander(5 * time.Second)
	}
	if *doEnrich {
		svc, closeLock, err := enrich.NewFromConfig(ctx, cfg, repo, log)
		if err != nil {
			log.Fatal("enrichment setup failed", "err", err)
		}
		defer closeLock()
		imp.enricher = svc
	}

	f, err := os.Open(*in)
	if err != nil {
		log.Fatal("open input failed", "path", *in, "err", err)
	}
	defer f.Close()

	stats, err := imp.importCSV(ctx, f)
	if err != nil {
		log.Fatal("import failed", "path", *in, "err", err)
	}
	log.Info("import done",
		"path", *in,
		"rows", stats.Rows,
		"created", stats.Created,
		"existing", stats.Existing,
		"seeded", stats.Seeded,
		"enriched", stats.Enriched,
		"invalid", stats.Invalid,
	)
}

func (imp *importer) importCSV(ctx context.Context, src io.Reader) (importStats, error) {
	var stats importStats

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return stats, err
	}
	if _, ok := header["url"]; !ok {
		return stats, fmt.Errorf("missing url column")
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		raw := valueAt(header, row, "url")
		if raw == "" {
			continue
		}
		stats.Rows++

		p, created, err := products.Track(ctx, imp.repo, imp.deriver, imp.expander, raw)
		if errors.Is(err, normalize.ErrInvalidURL) {
			stats.Invalid++
			imp.log.Warn("skipping invalid url", "url", raw)
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("track %s: %w", raw, err)
		}
		if !created {
			stats.Existing++
			continue
		}
		stats.Created++

		seeded, err := imp.seed(ctx, p, header, row)
		if err != nil {
			return stats, fmt.Errorf("seed %s: %w", p.ID, err)
		}
		if seeded {
			stats.Seeded++
		}

		if imp.enricher != nil {
			out, err := imp.enricher.Enrich(ctx, p.ID, enrich.Options{})
			if err != nil {
				imp.log.Error("enrich failed", "product_id", p.ID, "err", err)
				continue
			}
			if out.Applied {
				stats.Enriched++
			}
		}
	}
	return stats, nil
}

// seed applies the row's title, image and price columns as if a provider had
// returned them.
func (imp *importer) seed(ctx context.Context, p *models.Product, header map[string]int, row []string) (bool, error) {
	snap := models.Snapshot{
		Title: models.StringPtr(valueAt(header, row, "title")),
		Image: models.StringPtr(valueAt(header, row, "image")),
		Price: normalize.ParsePrice(valueAt(header, row, "price")),
	}
	res := history.Reconcile(*p, snap, history.Options{}, imp.now())
	if res.Empty() {
		return false, nil
	}
	if _, err := imp.repo.ApplyReconcile(ctx, p.ID, res); err != nil {
		return false, err
	}
	return true, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
