//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/VadimShubkin/ii/infrastructure/config"
	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideStore,
	ProvideLocker,
	ProvideBroadcaster,
	ProvideEventPublisher,
	ProvideCollector,
	ProvideMetrics,
	ProvideTracer,
	ProvideRecorder,
	ProvidePolicy,
	ProvideGate,
	ProvideTopicService,
	ProvideCommandBus,
	ProvideTopicQueries,
	ProvideErrorHandler,
	ProvideValidator,
	ProvideReadinessChecks,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
