package enrich

import (
	"context"
	"fmt"

	"pricewatch/internal/lock"
	"pricewatch/internal/scraper"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/utils"
)

// NewFromConfig builds a Service with the default provider chain and a
// Redis-backed lock when cfg.RedisAddr is set, otherwise an in-process lock.
// The returned closer releases the lock backend.
func NewFromConfig(ctx context.Context, cfg utils.Config, store Store, log *logger.Logger) (*Service, func(), error) {
	if log == nil {
		log = logger.Nop()
	}
	var (
		locker lock.Locker = lock.NewLocalLocker()
		closer             = func() {}
	)
	if cfg.RedisAddr != "" {
		rl, err := lock.NewRedisLocker(ctx, cfg.RedisAddr, cfg.LockTTL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("redis lock: %w", err)
		}
		locker = rl
		closer = func() { _ = rl.Close() }
		log.Info("using redis enrichment lock", "addr", cfg.RedisAddr)
	}
	return NewService(store, scraper.NewDefaultChain(cfg, log), locker, log), closer, nil
}
