//go:build wireinject
// +build wireinject

package di

import (
	"EduX/pkg/config"
	"EduX/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Repositories
		ProvideTradeStore,
		ProvideHistoryStore,
		ProvideTradeStorage,
		ProvideTradePublisher,
		ProvideCandlePublisher,
		ProvideMarketStream,

		// Use cases
		ProvideHub,
		ProvideSession,
		ProvideTradeProcessor,
		ProvidePipeline,
		ProvideTradeCollector,
		ProvideKafkaConsumer,
		ProvideKafkaTradesHandler,

		// Transport and application
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
