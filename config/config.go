package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const envPrefix = "CASHIER_"

type Config struct {
	Log     LogConfig     `envPrefix:"LOG_"`
	Billing BillingConfig `envPrefix:"BILLING_"`
	Demo    DemoConfig    `envPrefix:"DEMO_"`
}

type LogConfig struct {
	Level       string `env:"LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`
}

type BillingConfig struct {
	// ListenAddress is where the fake billing service is served.
	ListenAddress string `env:"LISTEN_ADDRESS" envDefault:"localhost:8090"`

	// Target is the billing service the demo vendor binds to. Empty means the
	// locally served fake.
	Target string `env:"TARGET"`

	PackageName     string        `env:"PACKAGE_NAME" envDefault:"com.example.cashier"`
	CatalogFile     string        `env:"CATALOG_FILE"`
	DetailsCacheTTL time.Duration `env:"DETAILS_CACHE_TTL" envDefault:"5m"`
}

type DemoConfig struct {
	SKU              string `env:"SKU" envDefault:"coffee"`
	DeveloperPayload string `env:"DEVELOPER_PAYLOAD"`
	Consume          bool   `env:"CONSUME" envDefault:"true"`
}

// BillingTarget returns the address the demo vendor dials.
func (c *Config) BillingTarget() string {
	if c.Billing.Target != "" {
		return c.Billing.Target
	}
	return c.Billing.ListenAddress
}

// Load reads the configuration from the environment, after loading an
// optional .env file from the working directory.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Billing.PackageName == "" {
		return nil, errors.New("billing package name is required")
	}
	return cfg, nil
}
