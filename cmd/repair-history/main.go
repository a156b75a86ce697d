// Command repair-history rewrites stored price histories so they are
// ordered, finite and free of consecutive duplicates, and realigns each
// product's current price with its last point.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pricewatch/internal/history"
	"pricewatch/internal/products"
	"pricewatch/pkg/database"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/models"
	"pricewatch/pkg/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := utils.Load()

	var (
		productID = flag.String("product", "", "repair a single product by id (default: all)")
		apply     = flag.Bool("apply", false, "write the repaired history (default is a dry run)")
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

	var targets []models.Product
	if *productID != "" {
		p, err := repo.FindByID(ctx, *productID)
		if err != nil {
			log.Fatal("load product failed", "product_id", *productID, "err", err)
		}
		if p == nil {
			log.Fatal("product not found", "product_id", *productID)
		}
		targets = append(targets, *p)
	} else {
		targets, err = repo.Scan(ctx, func(models.Product) bool { return true }, 0)
		if err != nil {
			log.Fatal("scan products failed", "err", err)
		}
	}

	changed, failed := 0, 0
	for _, p := range targets {
		if ctx.Err() != nil {
			break
		}
		rep := history.Repair(p)
		if !rep.Changed {
			continue
		}
		changed++
		log.Info("history needs repair",
			"product_id", p.ID,
			"before", rep.Before,
			"after", rep.After,
			"dropped", rep.Dropped,
			"collapsed", rep.Collapsed,
			"reordered", rep.Reordered,
		)
		if !*apply {
			continue
		}
		if err := repo.ReplaceHistory(ctx, p.ID, rep.History, rep.Price); err != nil {
			failed++
			log.Error("history repair failed", "product_id", p.ID, "err", err)
		}
	}

	log.Info("repair done", "scanned", len(targets), "changed", changed, "failed", failed, "applied", *apply)
	if failed > 0 {
		log.Fatal("some repairs failed", "failed", failed)
	}
}
