//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	chatservice "github.com/lk2023060901/st2u-assistant/internal/chat/service"
	"github.com/lk2023060901/st2u-assistant/internal/conf"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/logger"
	"github.com/lk2023060901/st2u-assistant/internal/pkg/sse"
	"github.com/lk2023060901/st2u-assistant/internal/server"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Repositories
	repositoryProviderSet,

	// Use cases
	useCaseProviderSet,

	// HTTP services
	httpServiceProviderSet,

	// Servers
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideRedisClient,
	provideZapLogger,
)

// Repository providers
var repositoryProviderSet = wire.NewSet(
	provideSessionRepo,
	provideAssistantAPI,
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	provideWorkerPool,
	provideTaskRunner,
	provideOptions,
	provideManagerOptions,
	provideSessionManager,
	sse.NewHub,
)

// HTTP service providers
var httpServiceProviderSet = wire.NewSet(
	provideStreamOptions,
	chatservice.NewChatService,
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
