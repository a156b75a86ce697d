package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

// AffiliateConfig holds vendor credentials and tags. Empty values disable
// the corresponding provider or tag rule; they are never an error.
type AffiliateConfig struct {
	FlipkartID      string
	FlipkartToken   string
	FlipkartAPIBase string
	AmazonTag       string
	APITimeout      time.Duration
	APIRPS          float64
}

type ScrapeConfig struct {
	NavTimeout    time.Duration
	SettleDelay   time.Duration
	CallTimeout   time.Duration
	UserAgent     string
	BrowserBin    string
	ControlURL    string
	StaticEnabled bool
	StaticTimeout time.Duration
}

type BatchConfig struct {
	Size        int
	DelayMin    time.Duration
	DelayJitter time.Duration
}

type Config struct {
	HTTPAddr  string
	GRPCAddr  string
	LogMode   string
	RedisAddr string
	LockTTL   time.Duration
	Auth      AuthConfig
	Affiliate AffiliateConfig
	Scrape    ScrapeConfig
	Batch     BatchConfig
}

// Load reads the process configuration from the environment. It is meant to
// be called once at startup; the result is passed to constructors.
func Load() Config {
	return Config{
		HTTPAddr:  envString("HTTP_ADDR", ":8080"),
		GRPCAddr:  envString("GRPC_ADDR", ":9090"),
		LogMode:   envString("LOG_MODE", "dev"),
		RedisAddr: envString("REDIS_ADDR", ""),
		LockTTL:   envTimeout("LOCK_TTL", 2*time.Minute),
		Auth:      LoadAuthConfig(),
		Affiliate: AffiliateConfig{
			FlipkartID:      envString("FLIPKART_AFFILIATE_ID", ""),
			FlipkartToken:   envString("FLIPKART_AFFILIATE_TOKEN", ""),
			FlipkartAPIBase: strings.TrimRight(envString("FLIPKART_API_BASE", "https://affiliate-api.flipkart.net"), "/"),
			AmazonTag:       envString("AMAZON_ASSOCIATE_TAG", ""),
			APITimeout:      envTimeout("AFFILIATE_API_TIMEOUT", 15*time.Second),
			APIRPS:          envFloat("AFFILIATE_API_RPS", 1),
		},
		Scrape: ScrapeConfig{
			NavTimeout:    envTimeout("SCRAPE_NAV_TIMEOUT", 30*time.Second),
			SettleDelay:   envDuration("SCRAPE_SETTLE_DELAY", 600*time.Millisecond),
			CallTimeout:   envTimeout("SCRAPE_TIMEOUT", 45*time.Second),
			UserAgent:     envString("SCRAPE_USER_AGENT", DefaultUserAgent),
			BrowserBin:    envString("BROWSER_BIN", ""),
			ControlURL:    envString("BROWSER_CONTROL_URL", ""),
			StaticEnabled: envBool("STATIC_FETCH_ENABLED", true),
			StaticTimeout: envTimeout("STATIC_FETCH_TIMEOUT", 10*time.Second),
		},
		Batch: BatchConfig{
			Size:        envInt("BATCH_SIZE", 50),
			DelayMin:    envDuration("BATCH_DELAY_MIN", 300*time.Millisecond),
			DelayJitter: envDuration("BATCH_DELAY_JITTER", 400*time.Millisecond),
		},
	}
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("PRICEWATCH_JWT_SECRET")
	if secret == "" {
		// dev default (change for production)
		secret = "dev-secret-change-me"
	}

	return AuthConfig{
		JWTSecret:   secret,
		JWTIssuer:   envString("PRICEWATCH_JWT_ISSUER", "pricewatch"),
		JWTDuration: time.Duration(envInt("PRICEWATCH_JWT_TTL_HOURS", 24)) * time.Hour,
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// envTimeout is envDuration for bounds that must stay positive: zero would
// mean no timeout at all.
func envTimeout(key string, def time.Duration) time.Duration {
	if d := envDuration(key, def); d > 0 {
		return d
	}
	return def
}
