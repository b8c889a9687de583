// Package bootstrap assembles the item service from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/app/migrate"
	httpx "github.com/ShannaChang/serverless-demo-for-aiops/internal/http"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository/badgerkv"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository/capacity"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository/gcs"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository/memory"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository/policy"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository/postgres"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/config"
)

const redisDialTimeout = 3 * time.Second

// Stores holds the opened item and blob stores and how to release them.
type Stores struct {
	Items  repository.ItemRepository
	Blobs  repository.BlobStore
	Health map[string]httpx.HealthCheck

	closers []func() error
}

// Close releases every store, returning the joined errors.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Stores) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// NewRedis connects to Redis when an address is configured. A nil client means Redis is off.
func NewRedis(ctx context.Context, cfg config.APIConfig, log *slog.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, continuing without it", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}
	log.Info("redis connected", "addr", addr)
	return client
}

// OpenStores opens the item and blob stores named by cfg and applies the capacity and access
// policy wrappers.
func OpenStores(ctx context.Context, cfg config.APIConfig, rdb *redis.Client, log *slog.Logger) (*Stores, error) {
	s := &Stores{Health: make(map[string]httpx.HealthCheck)}

	items, err := openItemStore(ctx, cfg, s, log)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	blobs, err := openBlobStore(ctx, cfg, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	var limiter capacity.Limiter
	if rdb != nil {
		limiter = capacity.NewRedisLimiter(rdb, "", log)
		s.Health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		limiter = capacity.NewMemoryLimiter()
	}
	s.onClose(limiter.Close)
	units := capacity.DefaultUnits(cfg.Faults.SimulateStoreThrottling)
	units.Read = cfg.StoreReadCapacity
	units.Write = cfg.StoreWriteCapacity
	s.Items = capacity.Wrap(items, limiter, cfg.SampleTable, units)
	log.Info("item store ready", "backend", cfg.ItemStore, "read_units", units.Read, "write_units", units.Write)

	s.Blobs = blobs
	if ops := policy.ParseOperations(strings.Join(cfg.BlobDenyOps, ",")); len(ops) > 0 {
		s.Blobs = policy.Deny(blobs, ops...)
		log.Info("blob access policy applied", "denied", ops)
	}
	log.Info("blob store ready", "backend", cfg.BlobStore, "bucket", cfg.ContentBucket)
	return s, nil
}

func openItemStore(ctx context.Context, cfg config.APIConfig, s *Stores, log *slog.Logger) (repository.ItemRepository, error) {
	switch cfg.ItemStore {
	case "", "memory":
		return memory.NewItemStore(), nil
	case "badger":
		store, err := badgerkv.Open(badgerkv.Options{Path: cfg.BadgerPath, Logger: log.With("component", "badger")})
		if err != nil {
			return nil, err
		}
		s.onClose(store.Close)
		return store, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("configure migrations: %w", err)
		}
		s.onClose(func() error { runner.Close(); return nil })
		if err := runner.Ping(ctx); err != nil {
			return nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			return nil, err
		}
		repo := postgres.New(pool, cfg.SampleTable)
		s.Health["database"] = repo.Ping
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown item store %q", cfg.ItemStore)
	}
}

func openBlobStore(ctx context.Context, cfg config.APIConfig, s *Stores) (repository.BlobStore, error) {
	switch cfg.BlobStore {
	case "", "memory":
		return memory.NewBlobStore(), nil
	case "gcs":
		store, err := gcs.New(ctx, cfg.ContentBucket, cfg.GCSCredentials)
		if err != nil {
			return nil, err
		}
		s.onClose(store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob store %q", cfg.BlobStore)
	}
}
