package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"pricewatch/internal/admin"
	"pricewatch/internal/affiliate"
	"pricewatch/internal/auth"
	"pricewatch/internal/batch"
	"pricewatch/internal/enrich"
	"pricewatch/internal/grpcserver"
	"pricewatch/internal/products"
	"pricewatch/pkg/database"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := utils.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbCfg := database.DefaultConfig()
	db, err := database.OpenAndMigrate(dbCfg)
	if err != nil {
		log.Fatal("db open failed", "path", dbCfg.Path, "err", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := products.NewRepo(db)
	svc, closeLock, err := enrich.NewFromConfig(ctx, cfg, repo, log)
	if err != nil {
		log.Fatal("enrichment setup failed", "err", err)
	}
	defer closeLock()

	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTDuration,
	}
	deriver := affiliate.NewDeriver(affiliate.Tags{FlipkartID: cfg.Affiliate.FlipkartID, AmazonTag: cfg.Affiliate.AmazonTag})

	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": dbCfg.Path})
	})
	router.GET("/ready", func(c *gin.Context) {
		pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "db_error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "db": "ok"})
	})

	productHandler := products.NewHandler(repo, svc, deriver, products.NewShortLinkExpander(5*time.Second), tokens, log.With("component", "products"))
	productHandler.RegisterRoutes(router.Group(""))

	runner := batch.NewRunner(repo, svc, log.With("component", "batch"))
	runner.MaxLimit = cfg.Batch.Size
	adminHandler := admin.NewHandler(repo, runner, tokens, cfg.Batch, log.With("component", "admin"))
	adminHandler.RegisterRoutes(router.Group("/admin"))

	health := grpcserver.NewServer(db, log.With("component", "grpc-health"))
	grpcSrv := health.NewGRPCServer()
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("grpc listen failed", "addr", cfg.GRPCAddr, "err", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Watch(ctx, 15*time.Second)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("gRPC health listening", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP API server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server error", "err", err)
		stop()
	}

	log.Info("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()

	wg.Wait()
	log.Info("servers stopped")
}
