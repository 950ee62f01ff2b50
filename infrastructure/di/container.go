package di

import (
	"github.com/VadimShubkin/ii/application/commands/bus"
	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/application/queries"
	"github.com/VadimShubkin/ii/application/services"
	"github.com/VadimShubkin/ii/infrastructure/config"
	"github.com/VadimShubkin/ii/interfaces/http/rest"
	"github.com/VadimShubkin/ii/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	Store       ports.Store
	Broadcaster ports.ReloadBroadcaster
	Policy      *moderation.RulePolicy
	Gate        *moderation.Gate
	Topics      *services.TopicService
	CommandBus  *bus.CommandBus
	Queries     *queries.TopicQueries
	Collector   *observability.Collector
	Router      *rest.Router
}
