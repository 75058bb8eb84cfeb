// Package storyloom parses client command flags and launches the offline
// engine runtime.
package storyloom

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/storyloom/internal/api/auth"
	apiclient "github.com/louisbranch/storyloom/internal/api/client"
	"github.com/louisbranch/storyloom/internal/connectivity"
	"github.com/louisbranch/storyloom/internal/offline"
	entrypoint "github.com/louisbranch/storyloom/internal/platform/cmd"
	"github.com/louisbranch/storyloom/internal/status"
	storagesqlite "github.com/louisbranch/storyloom/internal/storage/sqlite"
)

// Config holds client command configuration.
type Config struct {
	StatusPort      int           `env:"STORYLOOM_STATUS_PORT" envDefault:"8180"`
	APIBaseURL      string        `env:"STORYLOOM_API_BASE_URL" envDefault:"https://api.storyloom.dev"`
	APIToken        string        `env:"STORYLOOM_API_TOKEN"`
	DBPath          string        `env:"STORYLOOM_DB_PATH" envDefault:"data/storyloom.db"`
	ProbeURL        string        `env:"STORYLOOM_PROBE_URL"`
	ProbeInterval   time.Duration `env:"STORYLOOM_PROBE_INTERVAL" envDefault:"10s"`
	QueueMaxAge     time.Duration `env:"STORYLOOM_QUEUE_MAX_AGE" envDefault:"168h"`
	CacheMaxAge     time.Duration `env:"STORYLOOM_CACHE_MAX_AGE" envDefault:"168h"`
	SweepInterval   time.Duration `env:"STORYLOOM_SWEEP_INTERVAL" envDefault:"1h"`
	MaxSyncAttempts int           `env:"STORYLOOM_MAX_SYNC_ATTEMPTS" envDefault:"0"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.StatusPort, "status-port", cfg.StatusPort, "The local status HTTP server port")
	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "The generation service base URL")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The client SQLite database path")
	fs.StringVar(&cfg.ProbeURL, "probe-url", cfg.ProbeURL, "Connectivity probe URL (defaults to the API health endpoint)")
	fs.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "Connectivity probe interval")
	fs.DurationVar(&cfg.QueueMaxAge, "queue-max-age", cfg.QueueMaxAge, "Retention horizon for queued actions")
	fs.DurationVar(&cfg.CacheMaxAge, "cache-max-age", cfg.CacheMaxAge, "Retention horizon for cached sessions")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Retention sweeper interval")
	fs.IntVar(&cfg.MaxSyncAttempts, "max-sync-attempts", cfg.MaxSyncAttempts, "Failed settlements before an action is dropped (0 = unlimited)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the client runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceClient, func(context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("api base url is required")
	}
	probeURL := strings.TrimSpace(cfg.ProbeURL)
	if probeURL == "" {
		probeURL = strings.TrimRight(cfg.APIBaseURL, "/") + "/healthz"
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create client storage dir: %w", err)
		}
	}

	store, err := storagesqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open client sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close client sqlite store: %v", closeErr)
		}
	}()

	tokens := auth.NewTokenSource(cfg.APIToken)
	api, err := apiclient.New(cfg.APIBaseURL, tokens, nil)
	if err != nil {
		return fmt.Errorf("build api client: %w", err)
	}

	monitor, err := connectivity.NewProbeMonitor(probeURL, cfg.ProbeInterval, nil)
	if err != nil {
		return fmt.Errorf("build connectivity monitor: %w", err)
	}

	engine, err := offline.NewService(store, api, monitor, offline.Config{
		QueueMaxAge:     cfg.QueueMaxAge,
		CacheMaxAge:     cfg.CacheMaxAge,
		SweepInterval:   cfg.SweepInterval,
		MaxSyncAttempts: cfg.MaxSyncAttempts,
	})
	if err != nil {
		return fmt.Errorf("build offline engine: %w", err)
	}
	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize offline engine: %w", err)
	}
	defer engine.Dispose()

	statusServer, err := status.New(engine)
	if err != nil {
		return fmt.Errorf("build status server: %w", err)
	}

	monitorErr := make(chan error, 1)
	go func() {
		monitorErr <- monitor.Run(ctx)
	}()

	log.Printf("offline engine ready with %d pending actions", engine.CountPending())
	if err := statusServer.Run(ctx, cfg.StatusPort); err != nil {
		return err
	}
	<-monitorErr
	return nil
}
