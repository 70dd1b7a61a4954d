package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for a ratedesk instance.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // e.g. "ratedesk"
	Env         string // "dev", "uat", "prod"
	LogLevel    string
	Port        int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	// Upstream collaborators
	RateFeedURL      string // serves /currency-trading/live-rate
	GoldFeedWSURL    string // push source, preferred when set
	GoldFeedPollURL  string
	GoldPollInterval time.Duration
	TradeAPIURL      string // serves /currency-trading/trades
	PartyAPIURL      string // serves /parties/{id}
	FeedAPIKey       string
	FeedSecretName   string // when set, feed credentials come from AWS Secrets Manager
	AWSRegion        string

	FeedRatePerSecond int
	FeedBurst         int

	// Rate engine
	DefaultBase         string
	SupportedCurrencies []string
	FallbackPivots      map[string]float64
	CacheNamespace      string
	CacheTTL            time.Duration
	CacheRetention      time.Duration // 0 keeps persisted entries forever
	RefreshInterval     time.Duration
	FetchTimeout        time.Duration
	RetryAttempts       int
	RetryDelay          time.Duration
	RetryMaxDelay       time.Duration
	PartyCacheTTL       time.Duration
	CacheCleanupFreq    time.Duration

	// Infrastructure; empty disables the component.
	RedisAddr   string // empty runs with the in-memory rate cache only
	RedisDB     int
	RedisPass   string
	DatabaseURL string
	NATSURL     string
	RabbitMQURL string

	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName:      GetEnv("SERVICE_NAME", "ratedesk"),
		Env:              GetEnv("ENV", "dev"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		Port:             GetEnvInt("PORT", 9040),
		HTTPReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),

		RateFeedURL:      GetEnv("RATE_FEED_URL", "http://localhost:8080"),
		GoldFeedWSURL:    GetEnv("GOLD_FEED_WS_URL", ""),
		GoldFeedPollURL:  GetEnv("GOLD_FEED_POLL_URL", ""),
		GoldPollInterval: GetEnvDuration("GOLD_POLL_INTERVAL", 15*time.Second),
		TradeAPIURL:      GetEnv("TRADE_API_URL", "http://localhost:8080"),
		PartyAPIURL:      GetEnv("PARTY_API_URL", "http://localhost:8080"),
		FeedAPIKey:       GetEnv("FEED_API_KEY", ""),
		FeedSecretName:   GetEnv("FEED_SECRET_NAME", ""),
		AWSRegion:        GetEnv("AWS_REGION", "us-east-2"),

		FeedRatePerSecond: GetEnvInt("FEED_RATE_PER_SECOND", 5),
		FeedBurst:         GetEnvInt("FEED_BURST", 10),

		DefaultBase:         GetEnv("DEFAULT_BASE", "AED"),
		SupportedCurrencies: GetEnvList("SUPPORTED_CURRENCIES", "USD,AED,INR,EUR,GBP,SAR,XAU"),
		FallbackPivots:      GetEnvFloatMap("FALLBACK_PIVOTS"),
		CacheNamespace:      GetEnv("CACHE_NAMESPACE", "rate_cache"),
		CacheTTL:            GetEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheRetention:      GetEnvDuration("CACHE_RETENTION", 0),
		RefreshInterval:     GetEnvDuration("REFRESH_INTERVAL", 5*time.Minute),
		FetchTimeout:        GetEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		RetryAttempts:       GetEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:          GetEnvDuration("RETRY_DELAY", 1*time.Second),
		RetryMaxDelay:       GetEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
		PartyCacheTTL:       GetEnvDuration("PARTY_CACHE_TTL", 30*time.Minute),
		CacheCleanupFreq:    GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),

		RedisAddr:   GetEnvOptional("REDIS_ADDR", "localhost:6379"),
		RedisDB:     GetEnvInt("REDIS_DB", 0),
		RedisPass:   GetEnv("REDIS_PASS", ""),
		DatabaseURL: GetEnv("DATABASE_URL", ""),
		NATSURL:     GetEnv("NATS_URL", ""),
		RabbitMQURL: GetEnv("RABBITMQ_URL", ""),

		PGMaxConns:          GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          GetEnvInt("PG_MIN_CONNS", 2),
		PGMaxConnLifetime:   GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}
}
