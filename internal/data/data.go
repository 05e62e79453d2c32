package data

import (
	"context"
	"fmt"

	"github.com/lk2023060901/pricehunt-backend/internal/conf"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/database"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/pricehunt-backend/internal/pkg/redis"
	"github.com/lk2023060901/pricehunt-backend/internal/search/cache"
	taskdata "github.com/lk2023060901/pricehunt-backend/internal/task/data"
	"go.uber.org/zap"
)

// Data holds the process-wide storage clients. A client is nil when no
// configured driver needs it.
type Data struct {
	DB          *database.DB
	RedisClient *pkgredis.Client
	Logger      *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{Logger: log}

	if config.Task.Storage == conf.StoragePostgres {
		db, err := database.New(&config.Database, log.Named("database"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init database: %w", err)
		}
		if err := db.AutoMigrate(taskdata.Models()...); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		d.DB = db
	}

	if config.Cache.Driver == cache.DriverRedis {
		client, err := pkgredis.New(&config.Redis, log.Named("redis"))
		if err != nil {
			if d.DB != nil {
				_ = d.DB.Close()
			}
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.RedisClient = client
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if d.DB != nil {
			if err := d.DB.Close(); err != nil {
				log.Warn("failed to close database", zap.Error(err))
			}
		}
		if d.RedisClient != nil {
			if err := d.RedisClient.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		}
	}

	return d, cleanup, nil
}

// HealthCheck pings every opened client and reports each by name.
// A nil Data or an unopened client is simply absent from the result.
func (d *Data) HealthCheck(ctx context.Context) map[string]error {
	checks := make(map[string]error, 2)
	if d == nil {
		return checks
	}
	if d.DB != nil {
		checks["database"] = d.DB.HealthCheck(ctx)
	}
	if d.RedisClient != nil {
		checks["redis"] = d.RedisClient.Ping(ctx)
	}
	return checks
}
