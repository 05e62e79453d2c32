package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/database"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/pricehunt-backend/internal/pkg/redis"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/workerpool"
	searchbiz "github.com/lk2023060901/pricehunt-backend/internal/search/biz"
	"github.com/lk2023060901/pricehunt-backend/internal/search/cache"
	"github.com/lk2023060901/pricehunt-backend/internal/search/relevance"
	"github.com/lk2023060901/pricehunt-backend/internal/search/types"
	taskbiz "github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	"github.com/spf13/viper"
)

const envPrefix = "PRICEHUNT"

// StorageDriver selects where tasks are persisted.
type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)

type Config struct {
	Server    ServerConfig                     `mapstructure:"server"`
	Log       logger.Config                    `mapstructure:"log"`
	Database  database.Config                  `mapstructure:"database"`
	Redis     pkgredis.Config                  `mapstructure:"redis"`
	Cache     cache.Config                     `mapstructure:"cache"`
	Executor  searchbiz.ExecutorConfig         `mapstructure:"executor"`
	Platforms map[string]*types.PlatformConfig `mapstructure:"platforms"`
	Relevance relevance.OpenAIConfig           `mapstructure:"relevance"`
	Task      TaskConfig                       `mapstructure:"task"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TaskConfig covers the async task subsystem.
type TaskConfig struct {
	Storage      StorageDriver     `mapstructure:"storage"`
	Orchestrator taskbiz.Config    `mapstructure:"orchestrator"`
	Workers      workerpool.Config `mapstructure:"workers"`
	ResolveNames bool              `mapstructure:"resolve_names"`
}

// Addr is the listen address of the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads path (optional) on top of the defaults. Every key can be
// overridden from the environment, e.g. PRICEHUNT_SERVER_PORT=9000 or
// PRICEHUNT_PLATFORMS_RAKUTEN_API_KEY=....
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the sections that are always used. Database and redis
// are validated by their clients when the selected drivers need them.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server port must be between 1 and 65535")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if c.Task.Storage != StoragePostgres && c.Task.Storage != StorageMemory {
		return fmt.Errorf("task storage must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Task.Storage)
	}
	if c.Task.Workers.Workers <= 0 {
		return errors.New("task workers must be > 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enablecaller", lc.EnableCaller)
	v.SetDefault("log.enablestacktrace", lc.EnableStacktrace)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.maxsize", lc.File.MaxSize)
	v.SetDefault("log.file.maxage", lc.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lc.File.MaxBackups)
	v.SetDefault("log.file.compress", lc.File.Compress)

	dc := database.DefaultConfig()
	v.SetDefault("database.host", dc.Host)
	v.SetDefault("database.port", dc.Port)
	v.SetDefault("database.user", dc.User)
	v.SetDefault("database.password", dc.Password)
	v.SetDefault("database.dbname", dc.DBName)
	v.SetDefault("database.sslmode", dc.SSLMode)
	v.SetDefault("database.maxidleconns", dc.MaxIdleConns)
	v.SetDefault("database.maxopenconns", dc.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", dc.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", dc.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", dc.LogLevel)
	v.SetDefault("database.slowthreshold", dc.SlowThreshold)
	v.SetDefault("database.preparestmt", dc.PrepareStmt)
	v.SetDefault("database.timezone", dc.Timezone)
	v.SetDefault("database.automigrate", dc.AutoMigrate)

	rc := pkgredis.DefaultConfig()
	v.SetDefault("redis.mode", string(rc.Mode))
	v.SetDefault("redis.addr", rc.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", rc.PoolSize)
	v.SetDefault("redis.min_idle_conns", rc.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rc.DialTimeout)
	v.SetDefault("redis.read_timeout", rc.ReadTimeout)
	v.SetDefault("redis.write_timeout", rc.WriteTimeout)
	v.SetDefault("redis.max_retries", rc.MaxRetries)
	v.SetDefault("redis.key_prefix", rc.KeyPrefix)

	cc := cache.DefaultConfig()
	v.SetDefault("cache.driver", string(cc.Driver))
	v.SetDefault("cache.capacity", cc.Capacity)
	v.SetDefault("cache.default_ttl", cc.DefaultTTL)

	ec := searchbiz.DefaultExecutorConfig()
	v.SetDefault("executor.max_concurrency", ec.MaxConcurrency)
	v.SetDefault("executor.results_per_platform", ec.ResultsPerPlatform)
	v.SetDefault("executor.default_timeout", ec.DefaultTimeout)

	// keys without a default are invisible to AutomaticEnv during Unmarshal
	for _, code := range []string{"rakuten", "yahoo"} {
		v.SetDefault("platforms."+code+".api_host", "")
		v.SetDefault("platforms."+code+".api_key", "")
		v.SetDefault("platforms."+code+".affiliate_id", "")
	}
	v.SetDefault("platforms.mercari.browser_bin", "")
	v.SetDefault("platforms.rakuten.enabled", false)
	v.SetDefault("platforms.rakuten.timeout", 8)
	v.SetDefault("platforms.rakuten.max_retries", 2)
	v.SetDefault("platforms.rakuten.rate_limit", 1)
	v.SetDefault("platforms.yahoo.enabled", false)
	v.SetDefault("platforms.yahoo.timeout", 8)
	v.SetDefault("platforms.yahoo.max_retries", 2)
	v.SetDefault("platforms.yahoo.rate_limit", 1)
	v.SetDefault("platforms.mercari.enabled", false)
	v.SetDefault("platforms.mercari.timeout", 45)
	v.SetDefault("platforms.mercari.headless", true)

	v.SetDefault("relevance.enabled", false)
	v.SetDefault("relevance.api_key", "")
	v.SetDefault("relevance.base_url", "")
	v.SetDefault("relevance.model", "gpt-4o-mini")
	v.SetDefault("relevance.timeout", 15*time.Second)
	v.SetDefault("relevance.min_confidence", 0.7)
	v.SetDefault("relevance.max_titles", 50)

	tc := taskbiz.DefaultConfig()
	wc := workerpool.DefaultConfig()
	v.SetDefault("task.storage", string(StoragePostgres))
	v.SetDefault("task.resolve_names", true)
	v.SetDefault("task.orchestrator.result_limit", tc.ResultLimit)
	v.SetDefault("task.orchestrator.detail_limit", tc.DetailLimit)
	v.SetDefault("task.orchestrator.name_timeout", tc.NameTimeout)
	v.SetDefault("task.orchestrator.exec_timeout", tc.ExecTimeout)
	v.SetDefault("task.workers.workers", wc.Workers)
	v.SetDefault("task.workers.queue_size", wc.QueueSize)
	v.SetDefault("task.workers.non_blocking", wc.NonBlocking)
	v.SetDefault("task.workers.expiry_idle", wc.ExpiryIdle)
}
