package application

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/autoassign/pkg/eventbus"
)

// Application is the shared runtime handed to every module on registration.
type Application interface {
	DB() *pgxpool.Pool
	Redis() redis.UniversalClient
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	RegisterServices(services ...any)
	Service(service any) any
	Services() map[reflect.Type]any
}

type Module interface {
	Register(app Application) error
	Name() string
}

// ---- Application implementation ----

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	Redis    redis.UniversalClient
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.NewEventPublisher(logger)
	}
	return &application{
		pool:           opts.Pool,
		redis:          opts.Redis,
		eventPublisher: bus,
		logger:         logger,
		services:       make(map[reflect.Type]any),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	redis          redis.UniversalClient
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	services       map[reflect.Type]any
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) Redis() redis.UniversalClient {
	return app.redis
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...any) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type. Both T{} and (*T)(nil) name T.
func (app *application) Service(service any) any {
	serviceType := reflect.TypeOf(service)
	if serviceType.Kind() == reflect.Pointer {
		serviceType = serviceType.Elem()
	}
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]any {
	return app.services
}
