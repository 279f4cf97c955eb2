package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// ProjectionCacheConfig defines settings for the slot availability cache.
// When Enabled is false or no Redis client is configured, the projection reads
// the store on every request.  TTL bounds how long a cached day lives even if
// an invalidation is lost; VersionTTL must stay well above TTL because a
// recycled version counter would otherwise resurrect old entries.
type ProjectionCacheConfig struct {
	Enabled    bool          `env:"CACHE_ENABLED" envDefault:"true"`
	TTL        time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	VersionTTL time.Duration `env:"CACHE_VERSION_TTL" envDefault:"48h"`
	Prefix     string        `env:"CACHE_PREFIX" envDefault:"venue"`
}

// LoadProjectionCacheConfig parses the cache settings.
func LoadProjectionCacheConfig() (ProjectionCacheConfig, error) {
	var cfg ProjectionCacheConfig
	if err := env.Parse(&cfg); err != nil {
		return ProjectionCacheConfig{}, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.VersionTTL < 10*cfg.TTL {
		cfg.VersionTTL = 10 * cfg.TTL
	}
	return cfg, nil
}
