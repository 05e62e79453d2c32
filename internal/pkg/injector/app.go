package injector

import (
	"github.com/lk2023060901/pricehunt-backend/internal/conf"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/pricehunt-backend/internal/server"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	HTTPServer *server.HTTPServer
	Workers    *workerpool.Pool
}
