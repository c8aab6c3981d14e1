// Package config loads storefront client settings from the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/currency"

	"github.com/example/ec-storefront/internal/money"
)

// Storage backends accepted by SHOP_STORAGE.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Cart cache policies accepted by SHOP_CART_CACHE_POLICY.
const (
	CartCacheRetain = "retain"
	CartCacheClear  = "clear"
)

// Config holds client configuration.
type Config struct {
	// APIURL is the REST backend base URL, e.g. http://localhost:5000/api.
	APIURL string `mapstructure:"SHOP_API_URL"`
	// HTTPTimeout is the per-request timeout (e.g. "15s").
	HTTPTimeout string `mapstructure:"SHOP_HTTP_TIMEOUT"`
	// Storage selects where tokens and the cart cache are persisted.
	Storage string `mapstructure:"SHOP_STORAGE"`
	// StoragePath is the JSON file used by the file backend.
	StoragePath string `mapstructure:"SHOP_STORAGE_PATH"`
	// RedisURL is used by the redis backend (redis://host:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`
	// DatabaseURL is used by the postgres backend.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// CartCachePolicy decides whether the cached cart survives logout.
	CartCachePolicy string `mapstructure:"SHOP_CART_CACHE_POLICY"`
	// Currency is the ISO code used to format totals.
	Currency string `mapstructure:"SHOP_CURRENCY"`
	// PublicOrigin is prepended to wishlist share paths.
	PublicOrigin string `mapstructure:"SHOP_PUBLIC_ORIGIN"`
	// KafkaBrokers is a comma-separated broker list; empty disables the activity sink.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic receives storefront activity events.
	KafkaTopic string `mapstructure:"KAFKA_TOPIC"`
}

// Load reads .env (if present), then builds and validates Config from the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SHOP_API_URL", "http://localhost:5000/api")
	v.SetDefault("SHOP_HTTP_TIMEOUT", "15s")
	v.SetDefault("SHOP_STORAGE", StorageMemory)
	v.SetDefault("SHOP_STORAGE_PATH", ".storefront.json")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SHOP_CART_CACHE_POLICY", CartCacheRetain)
	v.SetDefault("SHOP_CURRENCY", "USD")
	v.SetDefault("SHOP_PUBLIC_ORIGIN", "http://localhost:5173")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "storefront-activity")
}

// Validate checks field combinations.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("config: SHOP_API_URL must be an absolute URL")
	}

	switch c.Storage {
	case StorageMemory:
	case StorageFile:
		if c.StoragePath == "" {
			return errors.New("config: SHOP_STORAGE_PATH must be set for file storage")
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set for redis storage")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for postgres storage")
		}
	default:
		return fmt.Errorf("config: unknown SHOP_STORAGE %q", c.Storage)
	}

	if c.CartCachePolicy != CartCacheRetain && c.CartCachePolicy != CartCacheClear {
		return fmt.Errorf("config: SHOP_CART_CACHE_POLICY must be %q or %q", CartCacheRetain, CartCacheClear)
	}

	if _, err := money.ParseCurrency(c.Currency); err != nil {
		return fmt.Errorf("config: SHOP_CURRENCY: %w", err)
	}
	return nil
}

// Timeout parses HTTPTimeout. Returns 15s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// CurrencyUnit returns the parsed currency, or the default when invalid.
func (c *Config) CurrencyUnit() currency.Unit {
	unit, err := money.ParseCurrency(c.Currency)
	if err != nil {
		return money.DefaultCurrency
	}
	return unit
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
