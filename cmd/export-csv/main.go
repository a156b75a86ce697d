package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

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
		productsOut = flag.String("products", "data/products.csv", "output CSV path for products")
		historyOut  = flag.String("history", "data/price_history.csv", "output CSV path for price history")
	)
	flag.Parse()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := database.OpenAndMigrate(database.DefaultConfig())
	if err != nil {
		log.Fatal("db open failed", "err", err)
	}
	defer db.Close()

	all, err := products.NewRepo(db).Scan(ctx, nil, 0)
	if err != nil {
		log.Fatal("load products failed", "err", err)
	}

	if err := writeFile(*productsOut, func(w io.Writer) error { return exportProducts(w, all) }); err != nil {
		log.Fatal("export products failed", "err", err)
	}
	if err := writeFile(*historyOut, func(w io.Writer) error { return exportHistory(w, all) }); err != nil {
		log.Fatal("export history failed", "err", err)
	}

	log.Info("export done", "products", *productsOut, "history", *historyOut, "count", len(all))
}

func writeFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func exportProducts(out io.Writer, all []models.Product) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"id", "url", "title", "image", "price", "affiliate_url", "watch_count", "created_at", "updated_at"}); err != nil {
		return err
	}
	for _, p := range all {
		if err := w.Write([]string{
			p.ID,
			p.URL,
			models.Deref(p.Title),
			models.Deref(p.Image),
			formatPrice(p.Price),
			models.Deref(p.AffiliateURL),
			strconv.Itoa(p.WatchCount),
			p.CreatedAt.UTC().Format(time.RFC3339),
			p.UpdatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func exportHistory(out io.Writer, all []models.Product) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"product_id", "at", "price"}); err != nil {
		return err
	}
	for _, p := range all {
		for _, pt := range p.PriceHistory {
			if err := w.Write([]string{p.ID, pt.At.UTC().Format(time.RFC3339Nano), strconv.FormatFloat(pt.Price, 'f', -1, 64)}); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func formatPrice(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
