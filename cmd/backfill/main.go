// Command backfill runs one batch enrichment pass over stored products.
// Without --apply it only reports what would change.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pricewatch/internal/batch"
	"pricewatch/internal/enrich"
	"pricewatch/internal/products"
	"pricewatch/pkg/database"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := utils.Load()

	var (
		limit   = flag.Int("limit", cfg.Batch.Size, "maximum products to process (capped at BATCH_SIZE)")
		apply   = flag.Bool("apply", false, "persist changes (default is a dry run)")
		force   = flag.Bool("force", false, "overwrite existing title/image/price with fresh values")
		selName = flag.String("select", batch.MissingMetadata.Name, "selector: missing-metadata, missing-price or all")
		report  = flag.Bool("json", false, "print the full report as JSON")
	)
	flag.Parse()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	sel, err := batch.SelectorByName(*selName)
	if err != nil {
		log.Fatal("bad selector", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.OpenAndMigrate(database.DefaultConfig())
	if err != nil {
		log.Fatal("db open failed", "err", err)
	}
	defer db.Close()

	repo := products.NewRepo(db)
	svc, closeLock, err := enrich.NewFromConfig(ctx, cfg, repo, log)
	if err != nil {
		log.Fatal("enrichment setup failed", "err", err)
	}
	defer closeLock()

	runner := batch.NewRunner(repo, svc, log.With("component", "batch"))
	runner.MaxLimit = cfg.Batch.Size
	rep, err := runner.Run(ctx, sel, batch.Options{
		Limit:       *limit,
		Apply:       *apply,
		Force:       *force,
		DelayMin:    cfg.Batch.DelayMin,
		DelayJitter: cfg.Batch.DelayJitter,
	})
	if *report && rep != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
	}
	if err != nil {
		log.Fatal("backfill stopped early", "err", err)
	}
}
