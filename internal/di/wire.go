//go:build wireinject
// +build wireinject

package di

import (
	"SigPulse/pkg/config"
	"SigPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Inputs
		ProvideWatchlistHolder,
		ProvideQuoteSource,
		ProvideCatalystCache,
		ProvideCatalystRefresher,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,

		// Outputs
		ProvidePublishPipeline,
		ProvideKafkaCatalystHandler,
		ProvideSignalHistory,
		ProvideSnapshotMirror,
		ProvideSnapshotStore,

		// Engine and application
		ProvideEngine,
		ProvideApp,
	)
	return &server.App{}, nil
}
