package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vbonduro/diamondinv/internal/config"
	"github.com/vbonduro/diamondinv/internal/db"
	"github.com/vbonduro/diamondinv/internal/kv"
	"github.com/vbonduro/diamondinv/internal/kv/file"
	"github.com/vbonduro/diamondinv/internal/kv/memory"
	"github.com/vbonduro/diamondinv/internal/kv/postgres"
	"github.com/vbonduro/diamondinv/internal/kv/redis"
	"github.com/vbonduro/diamondinv/internal/kv/s3"
	"github.com/vbonduro/diamondinv/internal/kv/sqlite"
	"github.com/vbonduro/diamondinv/internal/metrics"
	"github.com/vbonduro/diamondinv/internal/persist"
	"github.com/vbonduro/diamondinv/internal/service"
	"github.com/vbonduro/diamondinv/internal/store"
)

// runtime is a hydrated store bound to the configured storage backend.
type runtime struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	storage *kv.Storage
	store   *store.Store
	binding *persist.Binding
	service *service.InventoryService
	closers []func() error
}

// openRuntime never fails: a backend that cannot be opened is replaced by
// kv.Discard and the store runs without persistence.
func openRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) *runtime {
	rt := &runtime{logger: logger, metrics: metrics.New()}

	backend, err := rt.openBackend(ctx, cfg)
	if err != nil {
		logger.Warn("storage unavailable, running without persistence",
			"backend", cfg.StorageBackend, "error", err)
		backend = kv.Discard{}
	}

	rt.storage = kv.New(backend,
		kv.WithQuota(cfg.QuotaBytes),
		kv.WithLogger(logger),
		kv.WithMetrics(rt.metrics),
	)
	rt.store = store.New(store.WithLogger(logger), store.WithMetrics(rt.metrics))
	rt.binding = persist.Bind(rt.store, rt.storage,
		persist.WithKey(cfg.StoreKey),
		persist.WithLogger(logger),
		persist.WithMetrics(rt.metrics),
	)
	rt.service = service.NewInventoryService(rt.store, logger)
	return rt
}

func (rt *runtime) openBackend(ctx context.Context, cfg *config.Config) (kv.Backend, error) {
	switch cfg.StorageBackend {
	case "memory":
		return memory.New(), nil
	case "file":
		return file.New(cfg.FilePath)
	case "sqlite":
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, database.Close)
		return sqlite.New(database, cfg.SyncInterval, rt.logger), nil
	case "postgres":
		return postgres.New(ctx, cfg.PostgresDSN, "", rt.logger)
	case "redis":
		return redis.New(ctx, redis.Options{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel}, rt.logger)
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func (rt *runtime) Close() {
	rt.binding.Close()
	if err := rt.storage.Close(); err != nil {
		rt.logger.Error("failed to close storage", "error", err)
	}
	for _, c := range rt.closers {
		if err := c(); err != nil {
			rt.logger.Error("failed to close resource", "error", err)
		}
	}
}
