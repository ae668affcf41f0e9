//go:build wireinject
// +build wireinject

package di

import (
	"PerpScope/pkg/config"
	"PerpScope/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,

		// Repositories
		ProvideStructuralSource,
		ProvideMarketDataSource,
		ProvideEventPublisher,

		// Use cases
		ProvideWorkflow,

		// HTTP surface
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
