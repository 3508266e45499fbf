package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort           string        `mapstructure:"HTTP_PORT"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout    time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	MaxRequestBodySize int64         `mapstructure:"MAX_REQUEST_BODY_SIZE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// StorageDriver is "postgres" or "memory".
	StorageDriver  string `mapstructure:"STORAGE_DRIVER"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         int    `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	CartCacheTTL   time.Duration `mapstructure:"CART_CACHE_TTL"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	KafkaBrokers       []string      `mapstructure:"KAFKA_BROKERS"`
	NotificationsTopic string        `mapstructure:"NOTIFICATIONS_TOPIC"`
	OrderEventsTopic   string        `mapstructure:"ORDER_EVENTS_TOPIC"`
	NotifyTimeout      time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	StaleOrderAge      time.Duration `mapstructure:"STALE_ORDER_AGE"`

	StripeSecretKey     string        `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency     string        `mapstructure:"PAYMENT_CURRENCY"`
	PaymentSuccessURL   string        `mapstructure:"PAYMENT_SUCCESS_URL"`
	PaymentCancelURL    string        `mapstructure:"PAYMENT_CANCEL_URL"`
	PaymentTimeout      time.Duration `mapstructure:"PAYMENT_TIMEOUT"`
}

var defaults = map[string]any{
	"HTTP_PORT":             "8080",
	"REQUEST_TIMEOUT":       30 * time.Second,
	"SHUTDOWN_TIMEOUT":      10 * time.Second,
	"MAX_REQUEST_BODY_SIZE": int64(1 << 20),
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "json",
	"STORAGE_DRIVER":        "postgres",
	"DB_HOST":               "localhost",
	"DB_PORT":               5432,
	"DB_USER":               "postgres",
	"DB_PASSWORD":           "postgres",
	"DB_NAME":               "storefront",
	"DB_SSLMODE":            "disable",
	"MIGRATIONS_PATH":       "./internal/repository/migrations",
	"REDIS_ADDR":            "",
	"REDIS_PASSWORD":        "",
	"CART_CACHE_TTL":        15 * time.Minute,
	"IDEMPOTENCY_TTL":       24 * time.Hour,
	"KAFKA_BROKERS":         []string{},
	"NOTIFICATIONS_TOPIC":   "order-notifications",
	"ORDER_EVENTS_TOPIC":    "order-events",
	"NOTIFY_TIMEOUT":        5 * time.Second,
	"OUTBOX_POLL_INTERVAL":  time.Second,
	"STALE_ORDER_AGE":       15 * time.Minute,
	"STRIPE_SECRET_KEY":     "",
	"STRIPE_WEBHOOK_SECRET": "",
	"PAYMENT_CURRENCY":      "usd",
	"PAYMENT_SUCCESS_URL":   "http://localhost:3000/checkout/success",
	"PAYMENT_CANCEL_URL":    "http://localhost:3000/checkout/cancel",
	"PAYMENT_TIMEOUT":       10 * time.Second,
}

// Load reads configuration from the environment, optionally layered over a
// file. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if c.PaymentCurrency == "" {
		return errors.New("PAYMENT_CURRENCY must not be empty")
	}
	return nil
}

// splitList accepts both a real list and a single comma separated value, the
// form environment variables arrive in.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
