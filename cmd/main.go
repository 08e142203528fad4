package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/api"
	"github.com/rryowa/authservice/internal/controller"
	"github.com/rryowa/authservice/internal/migrations"
	"github.com/rryowa/authservice/internal/service"
	"github.com/rryowa/authservice/internal/storage"
	"github.com/rryowa/authservice/internal/storage/memory"
	"github.com/rryowa/authservice/internal/storage/postgres"
	"github.com/rryowa/authservice/internal/storage/redis"
	"github.com/rryowa/authservice/internal/util"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()
	defer func() { _ = logger.Sync() }()

	var cleanupFuncs []func()
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}()

	tokenConfig, err := util.NewTokenConfig()
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	storageConfig := util.NewStorageConfig()
	sessionConfig := util.NewSessionConfig()

	var users storage.UserRepository
	switch storageConfig.Driver {
	case "memory":
		logger.Warn("Using in-memory user storage, data is lost on restart")
		users = memory.NewUserStorage(logger)
	default:
		db, dbCleanup, err := util.NewDBConnection(logger, storageConfig)
		if err != nil {
			logger.Fatal(zap.Error(err))
		}
		cleanupFuncs = append(cleanupFuncs, dbCleanup)

		if err := migrations.RunMigrations(db, logger); err != nil {
			logger.Fatal(zap.Error(err))
		}
		users = postgres.NewStorage(db)
	}

	limiter := newRateLimiter(logger, util.NewRateLimiterConfig(), storageConfig, &cleanupFuncs)

	hasher := service.NewBcryptHasher(util.GetBcryptCost())
	verifier, err := service.NewCredentialVerifier(users, hasher, logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	tokenService := service.NewTokenService(tokenConfig)
	webhookService := service.NewWebhookService(logger, util.GetWebhookURL())

	var ipPolicy service.IPPolicy = service.ReportIPChange{Notifier: webhookService}
	if sessionConfig.EnforceIPCheck {
		ipPolicy = service.StrictIP{}
	}
	monitor := service.NewSessionMonitor(sessionConfig.MaxIdle, ipPolicy, logger)

	authService := service.NewAuthService(
		users, verifier, tokenService, hasher, webhookService, logger,
		service.WithStoreTimeout(storageConfig.StoreTimeout),
	)

	controller := controller.NewController(logger, authService)

	apiServer, err := api.NewAPI(controller, authService, monitor, limiter, util.NewServerConfig(), sessionConfig, logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	apiServer.Run(ctx)
}

func newRateLimiter(
	logger *zap.SugaredLogger,
	cfg *util.RateLimiterConfig,
	storageConfig *util.StorageConfig,
	cleanupFuncs *[]func(),
) service.RateLimiter {
	if cfg.Backend != "redis" {
		return memory.NewRateLimiter(cfg.Limit, cfg.Interval, cfg.BlockTime)
	}

	redisClient, redisCleanup, err := util.NewRedisClient(logger, storageConfig)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	*cleanupFuncs = append(*cleanupFuncs, redisCleanup)

	return redis.NewRateLimiter(redisClient, cfg.Limit, cfg.Interval, cfg.BlockTime)
}
