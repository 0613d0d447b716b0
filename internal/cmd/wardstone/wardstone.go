// Package wardstone parses wardstone command flags and launches the runtime.
package wardstone

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/wardstone/internal/platform/cmd"
	"github.com/louisbranch/wardstone/internal/services/protection/app"
)

// Config holds wardstone command configuration. Env names carry the
// WARDSTONE_ prefix.
type Config struct {
	DBPath             string        `env:"DB_PATH" envDefault:"data/wardstone.db"`
	HistoryEnabled     bool          `env:"HISTORY_ENABLED" envDefault:"true"`
	CacheSize          int           `env:"CACHE_SIZE" envDefault:"10000"`
	Precache           int           `env:"PRECACHE" envDefault:"-1"`
	RangeScanThreshold int           `env:"RANGE_SCAN_THRESHOLD" envDefault:"1000"`
	MigrationBatchSize int           `env:"MIGRATION_BATCH_SIZE" envDefault:"250"`
	TickInterval       time.Duration `env:"TICK_INTERVAL" envDefault:"50ms"`
	Port               int           `env:"PORT" envDefault:"8095"`
	OpenAttempts       int           `env:"OPEN_ATTEMPTS" envDefault:"5"`
	MigrateOnly        bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The protection SQLite database path")
	fs.BoolVar(&cfg.HistoryEnabled, "history", cfg.HistoryEnabled, "Record protection history")
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "Protection cache capacity")
	fs.IntVar(&cfg.Precache, "precache", cfg.Precache, "Protections loaded into the cache at startup (-1 uses the cache size)")
	fs.IntVar(&cfg.RangeScanThreshold, "range-scan-threshold", cfg.RangeScanThreshold, "Cache size below which range queries scan the whole cache")
	fs.IntVar(&cfg.MigrationBatchSize, "migration-batch-size", cfg.MigrationBatchSize, "Legacy rows converted per tick")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "Interval between loop ticks")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The health gRPC server port")
	fs.IntVar(&cfg.OpenAttempts, "open-attempts", cfg.OpenAttempts, "Attempts at opening the database before giving up")
	fs.BoolVar(&cfg.MigrateOnly, "migrate-only", cfg.MigrateOnly, "Upgrade the schema, convert legacy rows and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RuntimeConfig maps cfg onto the runtime settings.
func (cfg Config) RuntimeConfig() app.RuntimeConfig {
	return app.RuntimeConfig{
		Port:               cfg.Port,
		DBPath:             cfg.DBPath,
		HistoryEnabled:     cfg.HistoryEnabled,
		CacheSize:          cfg.CacheSize,
		Precache:           cfg.Precache,
		RangeScanThreshold: cfg.RangeScanThreshold,
		MigrationBatchSize: cfg.MigrationBatchSize,
		TickInterval:       cfg.TickInterval,
		OpenAttempts:       cfg.OpenAttempts,
		MigrateOnly:        cfg.MigrateOnly,
	}
}

// Run starts the wardstone runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWardstone, func(ctx context.Context) error {
		return app.Run(ctx, cfg.RuntimeConfig())
	})
}
