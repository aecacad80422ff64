package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config is loaded from ORDERS_* environment variables, flags, and
// config.yaml. An empty DatabaseURL selects the in-memory store.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"Probe server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL); empty uses memory" flag:"database-url"`
	Seed        SeedConfig
	Health      HealthConfig
	Graceful    GracefulConfig
}

// SeedConfig optionally loads orders at startup.
type SeedConfig struct {
	File     string `usage:"JSON (or .json.gz) file of orders to import at startup" flag:"seed-file"`
	Workers  int    `default:"4" usage:"Concurrent inserts while seeding" flag:"seed-workers"`
	MarkPaid bool   `default:"false" usage:"Mark seeded orders paid" flag:"seed-mark-paid"`
}

// HealthConfig controls background probe checks.
type HealthConfig struct {
	Interval      time.Duration `default:"10s" usage:"Interval between health checks" flag:"health-interval"`
	PingTimeout   time.Duration `default:"5s" usage:"Store ping timeout" flag:"ping-timeout"`
	MaxGoroutines int           `default:"10000" usage:"Liveness goroutine ceiling" flag:"max-goroutines"`
}

// GracefulConfig controls shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads the configuration.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

// applyPlatformDefaults honours the unprefixed DATABASE_URL and PORT that
// hosting platforms set.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
