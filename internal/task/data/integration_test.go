//go:build integration

package data

import (
	"os"
	"testing"

	"github.com/lk2023060901/pricehunt-backend/internal/pkg/database"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/task/biz"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to the database named by TEST_DB_* and migrates the
// task tables. Defaults match docker-compose.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.Host = getEnv("TEST_DB_HOST", cfg.Host)
	cfg.User = getEnv("TEST_DB_USER", cfg.User)
	cfg.Password = getEnv("TEST_DB_PASSWORD", cfg.Password)
	cfg.DBName = getEnv("TEST_DB_NAME", cfg.DBName)
	cfg.MaxOpenConns = 10
	cfg.MaxIdleConns = 5
	cfg.Timezone = "UTC"

	db, err := database.New(cfg, logger.NewNop())
	require.NoError(t, err, "connect to test database")
	require.NoError(t, db.AutoMigrate(Models()...))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestTaskRepo_Postgres(t *testing.T) {
	db := setupTestDB(t)

	testTaskRepo(t, func(t *testing.T) biz.TaskRepo {
		// 每个子测试从空表开始
		require.NoError(t, db.Exec("TRUNCATE TABLE search_task_results, search_tasks").Error)
		return NewTaskRepo(db)
	})
}
