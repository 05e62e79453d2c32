//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/lk2023060901/pricehunt-backend/internal/conf"
	"github.com/lk2023060901/pricehunt-backend/internal/pkg/logger"
	"github.com/lk2023060901/pricehunt-backend/internal/server"
	searchservice "github.com/lk2023060901/pricehunt-backend/internal/search/service"
	taskservice "github.com/lk2023060901/pricehunt-backend/internal/task/service"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Search pipeline
	searchProviderSet,

	// Task orchestration
	taskProviderSet,

	// HTTP services
	httpServiceProviderSet,

	// Servers
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideZapLogger,
)

// Search pipeline providers
var searchProviderSet = wire.NewSet(
	provideResultCache,
	provideRegistry,
	provideScorer,
	provideExecutor,
	provideEngine,
)

// Task providers
var taskProviderSet = wire.NewSet(
	provideTaskRepo,
	provideWorkerPool,
	provideNameResolver,
	provideOrchestrator,
)

// HTTP service providers
var httpServiceProviderSet = wire.NewSet(
	searchservice.NewSearchService,
	taskservice.NewTaskService,
)

// Server providers
var serverProviderSet = wire.NewSet(
	server.NewHTTPServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
