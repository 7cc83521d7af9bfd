// Package config loads the proxy configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the proxy settings.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Upstream
	BaseURL        string        `env:"BDL_BASE_URL"        envDefault:"https://api.balldontlie.io/v1"`
	APIKey         string        `env:"BALLDONTLIE_API_KEY,required,notEmpty"`
	UserAgent      string        `env:"USER_AGENT"          envDefault:"bdl-client/0.1.0"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"     envDefault:"10s"`
	MaxRetries     int           `env:"MAX_RETRIES"         envDefault:"1"`

	// Cache
	CacheTTL      time.Duration `env:"CACHE_TTL"      envDefault:"5m"`
	CacheCoalesce bool          `env:"CACHE_COALESCE" envDefault:"true"`

	// Default query for GET /api/team and GET /api/games
	TeamID  int `env:"TEAM_ID"  envDefault:"14"`
	Season  int `env:"SEASON"   envDefault:"2024"`
	PerPage int `env:"PER_PAGE" envDefault:"25"`

	// RedisURL enables the shared rate limit tracker when set
	RedisURL string `env:"REDIS_URL"`

	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogPretty   bool   `env:"LOG_PRETTY"   envDefault:"false"`
	TraceStdout bool   `env:"TRACE_STDOUT" envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be > 0 (got %v)", c.CacheTTL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %v)", c.RequestTimeout))
	}
	if c.PerPage < 1 || c.PerPage > 100 {
		errs = append(errs, fmt.Errorf("PER_PAGE must be between 1 and 100 (got %d)", c.PerPage))
	}
	if c.TeamID <= 0 {
		errs = append(errs, fmt.Errorf("TEAM_ID must be positive (got %d)", c.TeamID))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must not be negative (got %d)", c.MaxRetries))
	}
	return errors.Join(errs...)
}
