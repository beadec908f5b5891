// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/repository"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPPort           string        `envconfig:"HTTP_PORT" default:"8080"`
	GRPCHealthPort     string        `envconfig:"GRPC_HEALTH_PORT" default:"50060"`
	PublicBaseURL      string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxRequestBodySize int64         `envconfig:"MAX_REQUEST_BODY_SIZE" default:"1048576"`

	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"storefront"`
	DBPassword     string `envconfig:"DB_PASSWORD" default:"storefront"`
	DBName         string `envconfig:"DB_NAME" default:"storefront"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"internal/repository/migrations"`

	CatalogDBPath         string `envconfig:"CATALOG_DB_PATH" default:"catalog.db"`
	CatalogMigrationsPath string `envconfig:"CATALOG_MIGRATIONS_PATH" default:"internal/catalog/migrations"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	CartCacheTTL  time.Duration `envconfig:"CART_CACHE_TTL" default:"15m"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`

	MongoURI    string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName string `envconfig:"MONGO_DB_NAME" default:"storefront"`

	// PaymentProvider is "stripe" or "simulated".
	PaymentProvider    string        `envconfig:"PAYMENT_PROVIDER" default:"simulated"`
	StripeSecretKey    string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeAPIURL       string        `envconfig:"STRIPE_API_URL"`
	PaymentTimeout     time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"10s"`
	BreakerFailures    uint32        `envconfig:"PAYMENT_BREAKER_FAILURES" default:"5"`
	BreakerCooldown    time.Duration `envconfig:"PAYMENT_BREAKER_COOLDOWN" default:"30s"`
	Currency           string        `envconfig:"CURRENCY" default:"cad"`
	StoreName          string        `envconfig:"STORE_NAME" default:"Storefront"`
	CheckoutSessionTTL time.Duration `envconfig:"CHECKOUT_SESSION_TTL" default:"1h"`
	CheckoutGrace      time.Duration `envconfig:"CHECKOUT_SESSION_GRACE" default:"24h"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.PaymentProvider = strings.ToLower(c.PaymentProvider)
	switch c.PaymentProvider {
	case "simulated":
	case "stripe":
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}
	if c.CheckoutSessionTTL <= 0 {
		return fmt.Errorf("CHECKOUT_SESSION_TTL must be positive")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be a 3 letter code, got %q", c.Currency)
	}
	c.Currency = strings.ToLower(c.Currency)
	return nil
}

func (c *Config) Credentials() *repository.Credentials {
	return &repository.Credentials{
		Host:              c.DBHost,
		Port:              c.DBPort,
		User:              c.DBUser,
		Password:          c.DBPassword,
		DBName:            c.DBName,
		MigrationsDirPath: c.MigrationsPath,
	}
}
