// Package config reads runtime configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config carries every knob the poller needs. The NSA_ prefix is historical
// and matches the deployed container environment.
type Config struct {
	XMLRPCURL    string        `env:"NSA_XMLRPC_URI" envDefault:"http://localhost:8069"`
	Database     string        `env:"NSA_DB,notEmpty"`
	UID          int           `env:"NSA_USER" envDefault:"2"`
	Password     string        `env:"NSA_PASSWORD,notEmpty"`
	Workers      int           `env:"NSA_WORKERS" envDefault:"4"`
	PollInterval time.Duration `env:"NSA_POLL_INTERVAL" envDefault:"120s"`
	CatalogCSV   string        `env:"NSA_CATALOG_CSV" envDefault:"Allitems.csv"`
	CacheDir     string        `env:"NSA_CACHE_DIR"`
	InsecureTLS  bool          `env:"NSA_INSECURE_TLS" envDefault:"true"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load() // missing .env is fine
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	if c.Workers < 1 {
		return Config{}, errors.Errorf("NSA_WORKERS must be >= 1, got %d", c.Workers)
	}
	return c, nil
}
