package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"go.uber.org/zap"
)

// Command represents a command that changes state.
// Commands are plain structs so they can be stored and decoded by name.
type Command interface {
	Validate() error
	CommandName() string
}

// CommandHandler handles a specific command type
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) (interface{}, error)
}

type registration struct {
	cmdType reflect.Type
	handler CommandHandler
}

// CommandBus dispatches commands to their handlers
type CommandBus struct {
	handlers    map[string]registration
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewCommandBus creates a new command bus. Middleware wraps every handler,
// outermost first.
func NewCommandBus(middlewares ...Middleware) *CommandBus {
	return &CommandBus{
		handlers:    make(map[string]registration),
		middlewares: middlewares,
	}
}

// Register registers a handler for a command type
func (b *CommandBus) Register(cmd Command, handler CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := cmd.CommandName()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("handler already registered for command %s", name)
	}

	t := reflect.TypeOf(cmd)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	b.handlers[name] = registration{
		cmdType: t,
		handler: NewPipeline(b.middlewares...).Execute(handler),
	}
	return nil
}

// Send dispatches a command to its handler
func (b *CommandBus) Send(ctx context.Context, cmd Command) (interface{}, error) {
	if err := cmd.Validate(); err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.NewValidationError(err.Error())
	}

	b.mu.RLock()
	reg, exists := b.handlers[cmd.CommandName()]
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, cmd.CommandName())
	}
	return reg.handler.Handle(ctx, cmd)
}

// Decode rebuilds a registered command from its JSON payload
func (b *CommandBus) Decode(name string, payload []byte) (Command, error) {
	b.mu.RLock()
	reg, exists := b.handlers[name]
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, name)
	}

	v := reflect.New(reg.cmdType)
	if err := json.Unmarshal(payload, v.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode command %s: %w", name, err)
	}
	cmd, ok := v.Elem().Interface().(Command)
	if !ok {
		// pointer receivers
		cmd, ok = v.Interface().(Command)
	}
	if !ok {
		return nil, fmt.Errorf("registered type for %s is not a command", name)
	}
	return cmd, nil
}

// Middleware defines command middleware
type Middleware func(next CommandHandler) CommandHandler

// CommandHandlerFunc is an adapter to allow functions to be used as handlers
type CommandHandlerFunc func(ctx context.Context, cmd Command) (interface{}, error)

// Handle implements CommandHandler
func (f CommandHandlerFunc) Handle(ctx context.Context, cmd Command) (interface{}, error) {
	return f(ctx, cmd)
}

// LoggingMiddleware logs command execution
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next CommandHandler) CommandHandler {
		return CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
			name := cmd.CommandName()
			start := time.Now()
			logger.Debug("Executing command", zap.String("command", name))

			result, err := next.Handle(ctx, cmd)
			if err != nil {
				logger.Warn("Command failed",
					zap.String("command", name),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
			} else {
				logger.Info("Command succeeded",
					zap.String("command", name),
					zap.Duration("duration", time.Since(start)),
				)
			}
			return result, err
		})
	}
}

// Recorder receives command execution measurements
type Recorder interface {
	RecordCommandExecution(ctx context.Context, commandName string, duration time.Duration, err error)
}

// MetricsMiddleware reports each execution to rec
func MetricsMiddleware(rec Recorder) Middleware {
	return func(next CommandHandler) CommandHandler {
		return CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)
			rec.RecordCommandExecution(ctx, cmd.CommandName(), time.Since(start), err)
			return result, err
		})
	}
}

// Tracer opens a span around a unit of work
type Tracer interface {
	TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error
}

// TracingMiddleware runs each command inside a span named after it
func TracingMiddleware(tracer Tracer) Middleware {
	return func(next CommandHandler) CommandHandler {
		return CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
			var result interface{}
			err := tracer.TraceFunction(ctx, "command."+cmd.CommandName(), func(ctx context.Context) error {
				var err error
				result, err = next.Handle(ctx, cmd)
				return err
			})
			return result, err
		})
	}
}

// Pipeline chains multiple middleware together
type Pipeline struct {
	middlewares []Middleware
}

// NewPipeline creates a new middleware pipeline
func NewPipeline(middlewares ...Middleware) *Pipeline {
	return &Pipeline{
		middlewares: middlewares,
	}
}

// Execute runs the command through the pipeline
func (p *Pipeline) Execute(handler CommandHandler) CommandHandler {
	// Apply middleware in reverse order
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		handler = p.middlewares[i](handler)
	}
	return handler
}

// Errors
var (
	ErrHandlerNotFound = errors.New("command handler not found")
)
