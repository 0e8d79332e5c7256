package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"ticketpay/internal/cache"
	"ticketpay/internal/database"
	"ticketpay/internal/external"
	"ticketpay/internal/messaging"
)

// Config holds the application configuration
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	Database      database.Config
	NATS          messaging.Config
	Redis         cache.Config
	Elasticsearch ElasticsearchConfig
	Chain         external.ChainConfig
	Rates         external.RatesConfig

	Wallet   WalletConfig
	Checkout CheckoutConfig
	Webhook  WebhookConfig
	Jobs     JobsConfig
}

// WalletConfig controls key custody and the operational funding key.
type WalletConfig struct {
	// base64 of a 32-byte AES-256 key
	EncryptionKey string
	// child index under the internal branch (m/1/<i>) that pays out cashback
	FundingIndex     uint32
	FundingFeePerKB  int64
	FundingDustLimit int64
}

type CheckoutConfig struct {
	HoldWindow            time.Duration
	BCHDiscountPercent    float64
	CashbackPercent       float64
	TicketRefPrefix       string
	AllocationMaxAttempts int
}

type WebhookConfig struct {
	Secret string
}

// JobsConfig drives the background workers in cmd/consumers.
type JobsConfig struct {
	VerifyInterval     time.Duration
	VerifyBatchSize    int
	SweepInterval      time.Duration
	ReservationTTL     time.Duration
	CashbackAutoFund   bool
	ConsumerQueueGroup string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "ticketpay"),
			Password:           getEnv("DB_PASSWORD", "ticketpay"),
			DBName:             getEnv("DB_NAME", "ticketpay"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "ticketpay"),
			ClientID:  getEnv("NATS_CLIENT_ID", "ticketpay-api"),
			Enabled:   getEnvBool("NATS_ENABLED", true),
		},

		Redis: cache.Config{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},

		Elasticsearch: LoadElasticsearchConfig(),

		Chain: external.ChainConfig{
			BaseURL:  getEnv("CHAIN_API_URL", "https://rest.bch.actorforth.org/v2"),
			APIKey:   getEnv("CHAIN_API_KEY", ""),
			Timeout:  time.Duration(getEnvInt("CHAIN_TIMEOUT_SEC", 15)) * time.Second,
			MinDelay: getEnvDuration("CHAIN_MIN_DELAY", 200*time.Millisecond),
		},

		Rates: external.RatesConfig{
			BaseURL:      getEnv("RATES_API_URL", "https://api.coingecko.com/api/v3"),
			Currency:     strings.ToLower(getEnv("RATES_CURRENCY", "usd")),
			FallbackRate: getEnv("BCH_USD_PRICE", "250"),
			CacheTTL:     getEnvDuration("RATE_CACHE_TTL", 60*time.Second),
			Timeout:      time.Duration(getEnvInt("RATES_TIMEOUT_SEC", 10)) * time.Second,
		},

		Wallet: WalletConfig{
			EncryptionKey:    os.Getenv("BCH_WALLET_ENCRYPTION_KEY"),
			FundingIndex:     uint32(getEnvInt("FUNDING_INDEX", 0)),
			FundingFeePerKB:  int64(getEnvInt("FUNDING_FEE_PER_KB", 1000)),
			FundingDustLimit: int64(getEnvInt("FUNDING_DUST_LIMIT", 546)),
		},

		Checkout: CheckoutConfig{
			HoldWindow:            getEnvDuration("CHECKOUT_HOLD_WINDOW", 10*time.Minute),
			BCHDiscountPercent:    getEnvFloat("BCH_DISCOUNT_PERCENT", 10),
			CashbackPercent:       getEnvFloat("CASHBACK_PERCENT", 5),
			TicketRefPrefix:       getEnv("TICKET_REF_PREFIX", "TKT"),
			AllocationMaxAttempts: getEnvInt("ALLOCATION_MAX_ATTEMPTS", 5),
		},

		Webhook: WebhookConfig{
			Secret: os.Getenv("BCH_WEBHOOK_SECRET"),
		},

		Jobs: JobsConfig{
			VerifyInterval:     getEnvDuration("VERIFY_INTERVAL", 30*time.Second),
			VerifyBatchSize:    getEnvInt("VERIFY_BATCH_SIZE", 50),
			SweepInterval:      getEnvDuration("SWEEP_INTERVAL", time.Minute),
			ReservationTTL:     getEnvDuration("RESERVATION_TTL", 15*time.Minute),
			CashbackAutoFund:   getEnvBool("CASHBACK_AUTO_FUND", false),
			ConsumerQueueGroup: getEnv("CONSUMER_QUEUE_GROUP", "ticketpay-consumers"),
		},
	}
}

// getEnv returns the environment value or the default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
