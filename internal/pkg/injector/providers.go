package injector

import (
	"github.com/lk2023060901/pricehunt-backend/internal/conf"
	"github.com/lk2023060901/pricehunt-backend/internal/data"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/workerpool"
	searchbiz "github.com/lk2023060901/pricehunt-backend/internal/search/biz"
	"github.com/lk2023060901/pricehunt-backend/internal/search/cache"
	"github.com/lk2023060901/pricehunt-backend/internal/search/platform"
	"github.com/lk2023060901/pricehunt-backend/internal/search/relevance"
	"github.com/lk2023060901/pricehunt-backend/internal/server"
	taskbiz "github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	taskdata "github.com/lk2023060901/pricehunt-backend/internal/task/data"
	"go.uber.org/zap"
)

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideZapLogger(log *logger.Logger) *zap.Logger {
	return log.Logger
}

// Search providers

func provideResultCache(config *conf.Config, d *data.Data, log *logger.Logger) cache.Cache {
	if config.Cache.Driver == cache.DriverRedis && d.RedisClient != nil {
		return cache.NewRedisCache(d.RedisClient, config.Cache.Capacity, log.Named("cache"))
	}
	return cache.NewMemoryCache(config.Cache.Capacity)
}

func provideRegistry(config *conf.Config, log *logger.Logger) (*platform.Registry, func()) {
	registry := platform.NewFactory(log).BuildRegistry(config.Platforms)
	if registry.Len() == 0 {
		log.Warn("no platform enabled, every search will be rejected")
	}
	return registry, func() {
		if err := registry.Close(); err != nil {
			log.Warn("failed to close platform adapters", zap.Error(err))
		}
	}
}

func provideScorer(config *conf.Config, log *logger.Logger) (*relevance.Scorer, error) {
	if !config.Relevance.Enabled {
		return relevance.NewScorer(nil, 0), nil
	}
	classifier, err := relevance.NewOpenAIClassifier(&config.Relevance, log)
	if err != nil {
		return nil, err
	}
	return relevance.NewScorer(classifier, config.Relevance.MinConfidence), nil
}

func provideExecutor(config *conf.Config, log *logger.Logger) *searchbiz.Executor {
	return searchbiz.NewExecutor(&config.Executor, log)
}

func provideEngine(
	registry *platform.Registry,
	executor *searchbiz.Executor,
	scorer *relevance.Scorer,
	resultCache cache.Cache,
	config *conf.Config,
	log *logger.Logger,
) *searchbiz.Engine {
	return searchbiz.NewEngine(registry, executor, scorer, resultCache, config.Cache.DefaultTTL, log)
}

// Task providers

func provideTaskRepo(config *conf.Config, d *data.Data) taskbiz.TaskRepo {
	if config.Task.Storage == conf.StoragePostgres && d.DB != nil {
		return taskdata.NewTaskRepo(d.DB)
	}
	return taskdata.NewMemoryTaskRepo()
}

func provideWorkerPool(config *conf.Config, log *zap.Logger) (*workerpool.Pool, func(), error) {
	pool, err := workerpool.New(&config.Task.Workers, log.Named("workerpool"))
	if err != nil {
		return nil, nil, err
	}
	return pool, func() {
		if err := pool.Shutdown(config.Server.ShutdownTimeout); err != nil {
			log.Warn("worker pool shutdown timed out", zap.Error(err))
		}
	}, nil
}

func provideNameResolver(config *conf.Config, engine *searchbiz.Engine) taskbiz.NameResolver {
	if !config.Task.ResolveNames {
		return nil
	}
	return taskbiz.NewSearchNameResolver(engine, engine.Registry())
}

func provideOrchestrator(
	repo taskbiz.TaskRepo,
	engine *searchbiz.Engine,
	pool *workerpool.Pool,
	resolver taskbiz.NameResolver,
	config *conf.Config,
	log *logger.Logger,
) *taskbiz.Orchestrator {
	return taskbiz.NewOrchestrator(repo, engine, pool, resolver, &config.Task.Orchestrator, log)
}

func newApp(
	config *conf.Config,
	log *logger.Logger,
	httpServer *server.HTTPServer,
	pool *workerpool.Pool,
) *App {
	return &App{
		Config:     config,
		Logger:     log,
		HTTPServer: httpServer,
		Workers:    pool,
	}
}
