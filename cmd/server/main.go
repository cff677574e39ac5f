package main

import (
	"context"
	"fmt"

	"genrouter/internal/artifact"
	"genrouter/internal/config"
	"genrouter/internal/core"
	"genrouter/internal/health"
	"genrouter/internal/identity"
	logpkg "genrouter/internal/log"
	"genrouter/internal/metrics"
	"genrouter/internal/provider"
	"genrouter/internal/ratelimit"
	"genrouter/internal/registry"
	"genrouter/internal/router"
	"genrouter/internal/server"
	"genrouter/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	dotenvErr := godotenv.Load()

	logger := logpkg.CreateLogger()
	defer func() {
		if appLog, ok := logger.(*logpkg.AppLogger); ok {
			_ = appLog.Close()
		}
	}()

	if dotenvErr != nil {
		logger.Warn("No .env file found, using system environment variables")
	}
	logger.Info("Logger initialized")

	cfg, err := config.LoadServerConfigFromEnv(logger)
	if err != nil {
		logger.Fatal("Failed to load server configuration: %v", err)
	}

	ctx := context.Background()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, falling back to local files: %v", err)
			redisClient = nil
		} else {
			logger.Info("Connected to Redis")
			defer func() { _ = redisClient.Close() }()
		}
	}

	statsStorage := storage.InitStorage(redisClient, cfg.StatsFile, logger)
	defer func() { _ = statsStorage.Close() }()

	srv, err := buildServer(ctx, cfg, redisClient, statsStorage, logger)
	if err != nil {
		logger.Fatal("Failed to create server: %v", err)
	}
	defer func() { _ = srv.Close() }()

	logger.Info("Starting server on port %s", cfg.Port)
	if err := srv.Run(); err != nil {
		logger.Fatal("Server error: %v", err)
	}
}

// buildServer wires every component from cfg. redisClient may be nil.
func buildServer(ctx context.Context, cfg config.ServerConfig, redisClient *redis.Client, statsStorage core.StorageInterface, logger core.Logger) (srv *server.Server, err error) {
	metricsService := metrics.NewMetricsService(metrics.MetricsConfig{
		SaveInterval: core.MinSaveInterval,
		HistorySize:  core.HistoryBufferSize,
		Storage:      statsStorage,
		Logger:       logger,
	})
	if err := metricsService.LoadStats(); err != nil {
		logger.Warn("Failed to load historical stats: %v", err)
	}
	var stops []func()
	defer func() {
		if err != nil {
			for _, stop := range stops {
				stop()
			}
			_ = metricsService.Close()
		}
	}()

	store, err := modelStore(ctx, cfg, redisClient, logger)
	if err != nil {
		return nil, err
	}

	models := registry.New(store, registry.Config{
		TTL:      cfg.ModelCacheTTL,
		Capacity: cfg.ModelCacheCapacity,
		Logger:   logger,
		Metrics:  metricsService,
	})
	quotas := ratelimit.NewClassLimiter(cfg.Routing.Limits)
	stops = append(stops, models.Stop, quotas.Stop)

	httpClient := provider.NewHTTPClient(cfg.HTTPClientSettings)
	table, err := cfg.Routing.BuildTable(httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider table: %w", err)
	}
	for _, entry := range table.Describe() {
		logger.Info("Registered adapter %s", entry)
	}

	routerCfg := router.Config{
		ProviderTimeout:   cfg.ProviderTimeout,
		StreamIdleTimeout: cfg.StreamIdleTimeout,
		StreamMaxDuration: cfg.StreamMaxDuration,
		Logger:            logger,
		Metrics:           metricsService,
	}
	if cfg.UploadsEnabled() {
		s3, err := artifact.NewS3Store(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create artifact store: %w", err)
		}
		routerCfg.Images = artifact.NewUploader(s3, cfg.ArtifactPrefix, logger)
		logger.Info("Generated images will be uploaded to bucket %s", cfg.S3.Bucket)
	}

	verifiers := identity.Chain{identity.NewStaticVerifier(cfg.ClientAPIKeys, cfg.AdminAPIKeys)}
	if redisClient != nil {
		verifiers = append(verifiers, identity.NewRedisVerifier(redisClient, identity.RedisVerifierConfig{Logger: logger}))
	}

	return server.NewServer(server.Options{
		Config:   cfg,
		Router:   router.New(models, quotas, table, routerCfg),
		Registry: models,
		Quotas:   quotas,
		Health:   health.New(table, cfg.HealthProbeTimeout, logger),
		Metrics:  metricsService,
		Verifier: verifiers,
		Logger:   logger,
	})
}

// modelStore returns the Redis store when a client is available, seeding it
// from the models file when SEED_MODELS is set, and the file store
// otherwise.
func modelStore(ctx context.Context, cfg config.ServerConfig, redisClient *redis.Client, logger core.Logger) (core.ModelStore, error) {
	if redisClient == nil {
		fileStore, err := storage.NewFileModelStore(cfg.ModelsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load models file: %w", err)
		}
		logger.Info("Serving models from %s", cfg.ModelsFile)
		return fileStore, nil
	}

	redisStore := storage.NewRedisModelStore(redisClient, logger)
	if cfg.SeedModels {
		fileStore, err := storage.NewFileModelStore(cfg.ModelsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed models: %w", err)
		}
		seeded := 0
		for _, m := range fileStore.All() {
			if err := redisStore.Put(ctx, m); err != nil {
				return nil, fmt.Errorf("failed to seed model %s: %w", m.ID, err)
			}
			seeded++
		}
		logger.Info("Seeded %d models from %s into Redis", seeded, cfg.ModelsFile)
	}
	return redisStore, nil
}
