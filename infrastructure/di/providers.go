package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VadimShubkin/ii/application/commands"
	"github.com/VadimShubkin/ii/application/commands/bus"
	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/application/queries"
	"github.com/VadimShubkin/ii/application/services"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/infrastructure/config"
	"github.com/VadimShubkin/ii/infrastructure/messaging"
	"github.com/VadimShubkin/ii/infrastructure/messaging/eventbridge"
	"github.com/VadimShubkin/ii/infrastructure/messaging/redis"
	"github.com/VadimShubkin/ii/infrastructure/persistence/dynamodb"
	"github.com/VadimShubkin/ii/infrastructure/persistence/memory"
	"github.com/VadimShubkin/ii/infrastructure/persistence/resilience"
	"github.com/VadimShubkin/ii/infrastructure/persistence/sqlite"
	"github.com/VadimShubkin/ii/interfaces/http/rest"
	"github.com/VadimShubkin/ii/interfaces/http/rest/handlers"
	"github.com/VadimShubkin/ii/pkg/auth"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/VadimShubkin/ii/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zcfg.Build()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideStore opens the configured store driver and wraps it with the
// circuit breaker when enabled
func ProvideStore(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (ports.Store, func(), error) {
	var (
		store   ports.Store
		cleanup = func() {}
	)

	switch cfg.StoreDriver {
	case config.StoreMemory:
		store = memory.NewStore()
	case config.StoreSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = s
		cleanup = func() {
			if err := s.Close(); err != nil {
				logger.Error("Failed to close sqlite store", zap.Error(err))
			}
		}
	case config.StoreDynamoDB:
		store = dynamodb.NewStore(client, cfg.DynamoDBTable, cfg.IndexName, logger)
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	logger.Info("Store initialized", zap.String("driver", cfg.StoreDriver))

	if cfg.CircuitBreaker.Enabled {
		store = resilience.NewBreakerStore(store, resilience.BreakerConfig{
			Name:             "store-" + cfg.StoreDriver,
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			Timeout:          cfg.CircuitBreaker.Timeout,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		}, logger)
	}
	return store, cleanup, nil
}

// ProvideLocker serializes graph writes. Only the DynamoDB driver runs
// across processes, so only it needs the distributed lock.
func ProvideLocker(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) ports.Locker {
	if cfg.StoreDriver == config.StoreDynamoDB {
		return dynamodb.NewDistributedLock(client, cfg.DynamoDBTable, cfg.LockTTL, logger)
	}
	return memory.NewKeyedLocker()
}

// ProvideBroadcaster connects the reload channel. It returns a nil
// broadcaster when no Redis URL is configured.
func ProvideBroadcaster(cfg *config.Config, logger *zap.Logger) (ports.ReloadBroadcaster, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	b, err := redis.NewBroadcaster(cfg.RedisURL, cfg.ReloadChannel, logger)
	if err != nil {
		return nil, nil, err
	}
	return b, func() {
		if err := b.Close(); err != nil {
			logger.Error("Failed to close redis broadcaster", zap.Error(err))
		}
	}, nil
}

// ProvideEventPublisher publishes to EventBridge when running on AWS and
// to the log otherwise
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if cfg.IsLambda || cfg.StoreDriver == config.StoreDynamoDB {
		return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
	}
	return messaging.NewLogPublisher(logger)
}

// ProvideCollector creates the Prometheus collector served on /metrics
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(strings.ToLower(cfg.MetricsNamespace))
}

// ProvideMetrics creates the CloudWatch metrics sink. Without
// ENABLE_METRICS it records nothing.
func ProvideMetrics(cfg *config.Config, client *awscloudwatch.Client, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, logger)
	}
	return observability.NewMetrics(namespace, client, logger)
}

// ProvideTracer creates the X-Ray tracer used by the command bus
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(strings.ToLower(cfg.MetricsNamespace))
}

// Recorder fans metrics out to Prometheus and CloudWatch
type Recorder struct {
	collector *observability.Collector
	metrics   *observability.Metrics
}

// ProvideRecorder combines both metric sinks
func ProvideRecorder(collector *observability.Collector, metrics *observability.Metrics) *Recorder {
	return &Recorder{collector: collector, metrics: metrics}
}

// RecordCommandExecution implements bus.Recorder
func (r *Recorder) RecordCommandExecution(ctx context.Context, name string, duration time.Duration, err error) {
	r.collector.RecordCommandExecution(ctx, name, duration, err)
	r.metrics.RecordCommandExecution(ctx, name, duration, err)
}

// RecordModeration implements moderation.DecisionRecorder
func (r *Recorder) RecordModeration(action, decision string) {
	r.collector.RecordModeration(action, decision)
	r.metrics.RecordModeration(action, decision)
}

// PolicyConfigFrom converts the file form of the moderation rules
func PolicyConfigFrom(mc config.ModerationConfig) moderation.PolicyConfig {
	rules := make(map[moderation.Action]moderation.Decision, len(mc.Rules))
	for action, decision := range mc.Rules {
		rules[moderation.Action(action)] = moderation.Decision(decision)
	}
	return moderation.PolicyConfig{
		Default:      moderation.Decision(mc.Default),
		TrustedRoles: append([]string(nil), mc.TrustedRoles...),
		Rules:        rules,
	}
}

// ProvidePolicy creates the moderation policy from configuration
func ProvidePolicy(cfg *config.Config) (*moderation.RulePolicy, error) {
	return moderation.NewRulePolicy(PolicyConfigFrom(cfg.Moderation))
}

// ProvideGate creates the moderation gate. Its replayer is attached by
// ProvideCommandBus.
func ProvideGate(policy *moderation.RulePolicy, store ports.Store, publisher ports.EventPublisher, recorder *Recorder, logger *zap.Logger) *moderation.Gate {
	return moderation.NewGate(policy, store, publisher, recorder, logger)
}

// ProvideTopicService creates the topic graph engine
func ProvideTopicService(cfg *config.Config, store ports.Store, locker ports.Locker, broadcaster ports.ReloadBroadcaster, logger *zap.Logger) *services.TopicService {
	links := services.NewLinkService(store, logger)
	index := services.NewTopicIndex(store, logger)
	return services.NewTopicService(store, links, index, locker, broadcaster, services.TopicServiceConfig{
		SuggestLimit: cfg.SuggestLimit,
	}, logger)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	cfg *config.Config,
	topics *services.TopicService,
	store ports.Store,
	gate *moderation.Gate,
	recorder *Recorder,
	tracer *observability.Tracer,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	middlewares := []bus.Middleware{
		bus.LoggingMiddleware(logger),
		bus.MetricsMiddleware(recorder),
	}
	if cfg.EnableTracing {
		middlewares = append(middlewares, bus.TracingMiddleware(tracer))
	}

	commandBus := bus.NewCommandBus(middlewares...)
	if err := commands.NewHandlers(topics, store, gate, logger).Register(commandBus); err != nil {
		return nil, err
	}
	gate.SetReplayer(commandBus)
	return commandBus, nil
}

// ProvideTopicQueries creates the read side
func ProvideTopicQueries(topics *services.TopicService) *queries.TopicQueries {
	return queries.NewTopicQueries(topics)
}

// ProvideErrorHandler renders errors; development builds include causes
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideValidator creates the JWT validator. Without a secret every API
// caller is anonymous.
func ProvideValidator(cfg *config.Config) (*auth.Validator, error) {
	if cfg.JWTSecret == "" {
		return nil, nil
	}
	return auth.NewValidator(auth.Config{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
	})
}

// ProvideReadinessChecks lists the dependencies /ready probes
func ProvideReadinessChecks(store ports.Store, broadcaster ports.ReloadBroadcaster) map[string]rest.ReadinessCheck {
	checks := map[string]rest.ReadinessCheck{
		"store": func(ctx context.Context) error {
			_, err := store.Get(ctx, entities.KindTopic, entities.TopicURI("__ready__"))
			if err == nil || apperrors.IsNotFound(err) {
				return nil
			}
			return err
		},
	}
	if pinger, ok := broadcaster.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = pinger.Ping
	}
	return checks
}

// ProvideRouter assembles the HTTP surface
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	topicQueries *queries.TopicQueries,
	topics *services.TopicService,
	gate *moderation.Gate,
	errHandler *apperrors.ErrorHandler,
	validator *auth.Validator,
	collector *observability.Collector,
	checks map[string]rest.ReadinessCheck,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(
		handlers.NewTopicHandler(commandBus, topicQueries, topics, errHandler, logger),
		handlers.NewModerationHandler(gate, errHandler, logger),
		validator,
		collector,
		checks,
		rest.Options{
			ServiceName:    strings.ToLower(cfg.MetricsNamespace),
			EnableCORS:     cfg.EnableCORS,
			EnableTracing:  cfg.EnableTracing && !cfg.IsLambda,
			TrustGateway:   cfg.IsLambda,
			ModeratorRoles: cfg.Moderation.TrustedRoles,
		},
		logger,
	)
}
