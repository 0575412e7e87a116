package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	WSPort string `env:"JAM_WS_PORT" envDefault:"3002"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"jamsync"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"jamsync.db"`

	// RedisURI is optional; without it authority checks read the store.
	RedisURI string `env:"REDIS_URI"`

	// RelayURL points the API at a relay in another process. Empty means
	// the relay runs in-process.
	RelayURL         string        `env:"JAM_RELAY_URL"`
	BridgeSecret     string        `env:"JAM_BRIDGE_SECRET"`
	BroadcastTimeout time.Duration `env:"JAM_BROADCAST_TIMEOUT" envDefault:"1s"`
	HydrateRooms     bool          `env:"JAM_HYDRATE_ROOMS" envDefault:"true"`

	JWTSecret   string   `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case StoreMongo, StoreSQLite:
	default:
		return nil, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return &cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// RedisAddr strips the redis:// scheme some deployments put in REDIS_URI.
func (c *Config) RedisAddr() string {
	return strings.TrimPrefix(c.RedisURI, "redis://")
}
