// Package app runs the protection repository: it opens storage, drives the
// migration one batch per tick, warms the cache in the background and serves
// gRPC health.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/wardstone/internal/services/protection/identity"
	"github.com/louisbranch/wardstone/internal/services/protection/repository"
	"github.com/louisbranch/wardstone/internal/services/protection/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultPort         = 8095
	defaultDBPath       = "data/wardstone.db"
	defaultOpenAttempts = 5

	// Health service names reported next to the overall status.
	HealthRepository = "wardstone.repository"
	HealthMigration  = "wardstone.migration"

	precacheAttempts = 3
)

// RuntimeConfig controls startup, storage and loop behavior.
type RuntimeConfig struct {
	Port               int
	DBPath             string
	HistoryEnabled     bool
	CacheSize          int
	Precache           int
	RangeScanThreshold int
	MigrationBatchSize int
	TickInterval       time.Duration
	OpenAttempts       int
	MigrateOnly        bool
	Resolver           identity.Resolver
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.OpenAttempts <= 0 {
		cfg.OpenAttempts = defaultOpenAttempts
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	return cfg
}

func (cfg RuntimeConfig) repositoryOptions() repository.Options {
	return repository.Options{
		CacheSize:          cfg.CacheSize,
		RangeScanThreshold: cfg.RangeScanThreshold,
		MigrationBatchSize: cfg.MigrationBatchSize,
		HistoryEnabled:     cfg.HistoryEnabled,
		Resolver:           cfg.Resolver,
		Logf:               log.Printf,
	}
}

// Run opens storage, initializes the repository and serves until ctx ends.
// With MigrateOnly it converts every legacy row and returns.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := openStore(ctx, cfg.DBPath, cfg.OpenAttempts, backoff.NewExponentialBackOff())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close sqlite store: %v", closeErr)
		}
	}()

	repo := repository.New(store, cfg.repositoryOptions())
	if err := repo.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}

	if cfg.MigrateOnly {
		if err := RunMigration(ctx, repo); err != nil {
			return err
		}
		log.Printf("%s", Summarize(ctx, repo, cfg.DBPath))
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	return Serve(ctx, repo, listener, cfg)
}

// Serve runs the loop and the health server on listener until ctx ends.
func Serve(ctx context.Context, repo *repository.Repository, listener net.Listener, cfg RuntimeConfig) error {
	cfg = cfg.normalized()
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthRepository, grpc_health_v1.HealthCheckResponse_SERVING)

	loop := NewLoop(cfg.TickInterval, log.Printf)
	if err := Start(loop, repo, cfg.Precache, healthServer); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return loop.Run(groupCtx)
	})
	group.Go(func() error {
		log.Printf("wardstone health server listening at %v", listener.Addr())
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})
	err := group.Wait()
	log.Printf("%s", Summarize(context.WithoutCancel(ctx), repo, cfg.DBPath))
	return err
}

// Start queues the startup work on loop: the background precache and, while
// legacy rows remain, the migration task. Migration ticks make in-flight
// precache batches stale, so the precache is queued again once the
// migration completes. healthServer may be nil.
func Start(loop *Loop, repo *repository.Repository, precache int, healthServer *health.Server) error {
	setMigrationStatus(healthServer, repo.MigrationDone())
	if err := loop.Submit(func(ctx context.Context) {
		startPrecache(ctx, loop, repo, precache, 1)
	}); err != nil {
		return err
	}
	if repo.MigrationDone() {
		return nil
	}
	return loop.Schedule("migration", func(ctx context.Context) (bool, error) {
		result, err := repo.MigrationTick(ctx)
		if result.Done {
			setMigrationStatus(healthServer, true)
			log.Printf("migration complete: %s", Summarize(ctx, repo, ""))
			startPrecache(ctx, loop, repo, precache, 1)
		}
		return result.Done, err
	})
}

func startPrecache(ctx context.Context, loop *Loop, repo *repository.Repository, limit, attempt int) {
	job := repo.NewPrecacheJob(limit)
	loop.Offload(ctx, "precache", func(ctx context.Context) (func(context.Context), error) {
		batch, err := job.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) {
			if repo.ApplyPrecache(batch) {
				log.Printf("precached %d protections", len(batch.Protections))
				return
			}
			if attempt < precacheAttempts {
				startPrecache(ctx, loop, repo, limit, attempt+1)
			}
		}, nil
	})
}

func setMigrationStatus(server *health.Server, done bool) {
	if server == nil {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if done {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	server.SetServingStatus(HealthMigration, status)
}

// RunMigration converts every remaining legacy row on the calling goroutine.
func RunMigration(ctx context.Context, repo *repository.Repository) error {
	for !repo.MigrationDone() {
		if _, err := repo.MigrationTick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// openStore opens the SQLite store, retrying transient failures such as a
// locked database file.
func openStore(ctx context.Context, path string, attempts int, policy backoff.BackOff) (*sqlite.Store, error) {
	store, err := backoff.Retry(ctx, func() (*sqlite.Store, error) {
		store, err := sqlite.Open(path, sqlite.WithLogf(log.Printf))
		if err != nil {
			log.Printf("open sqlite store: %v", err)
			return nil, err
		}
		return store, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(attempts)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}
