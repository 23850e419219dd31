//go:build wireinject
// +build wireinject

package di

import (
	"FieldPulse/pkg/config"
	"FieldPulse/pkg/server"

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
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideStore,
		ProvidePublisher,

		// Pipeline stages
		ProvideSchema,
		ProvideNormalizer,
		ProvideProjector,
		ProvideRoster,
		ProvideAggregator,

		// Use cases
		ProvideSymbolLocks,
		ProvidePipeline,
		ProvideFeedbackLoop,
		ProvideFeedbackJob,
		ProvideFeedbackQueue,
		ProvideRecordsHandler,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
