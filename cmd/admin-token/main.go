// Command admin-token prints a signed admin bearer token for the /admin
// routes and forced refreshes.
package main

import (
	"flag"
	"fmt"

	"github.com/joho/godotenv"

	"pricewatch/internal/auth"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/utils"
)

func main() {
	_ = godotenv.Load()
	cfg := utils.Load()

	var (
		subject = flag.String("subject", "ops", "token subject")
		role    = flag.String("role", auth.RoleAdmin, "token role")
		ttl     = flag.Duration("ttl", cfg.Auth.JWTDuration, "token lifetime")
	)
	flag.Parse()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	tokens := auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: *ttl,
	}
	tok, exp, err := tokens.Sign(*subject, *role)
	if err != nil {
		log.Fatal("sign failed", "err", err)
	}
	log.Info("token issued", "subject", *subject, "role", *role, "expires", exp)
	fmt.Println(tok)
}
