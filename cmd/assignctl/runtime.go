package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/autoassign/modules"
	"github.com/iota-uz/autoassign/modules/assignment/services"
	"github.com/iota-uz/autoassign/pkg/application"
	"github.com/iota-uz/autoassign/pkg/authz"
	"github.com/iota-uz/autoassign/pkg/composables"
	"github.com/iota-uz/autoassign/pkg/configuration"
	"github.com/iota-uz/autoassign/pkg/eventbus"
	"github.com/iota-uz/autoassign/pkg/logging"
)

// runtime is the wiring shared by every command that touches tenant data.
type runtime struct {
	conf    *configuration.Configuration
	pool    *pgxpool.Pool
	redis   redis.UniversalClient
	app     application.Application
	closers []func()
}

func newRuntime(ctx context.Context) (*runtime, error) {
	conf := configuration.Use()
	logger := conf.Logger()
	rt := &runtime{conf: conf}

	if conf.OpenTelemetry.Enabled {
		rt.closers = append(rt.closers, logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL))
	}
	composables.SetRLSEnforced(conf.RLSEnforced())

	pool, err := connectDB(ctx, conf)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.pool = pool
	rt.closers = append(rt.closers, pool.Close)

	if conf.Assignment.ScopedCursorBackend == configuration.CursorBackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.URL,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			rt.close()
			return nil, withCode(exitDB, fmt.Errorf("redis connect failed: %w", err))
		}
		rt.redis = client
		rt.closers = append(rt.closers, func() { _ = client.Close() })
	}

	authorizer, err := authz.NewFromConfig(conf)
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.app = application.New(&application.ApplicationOptions{
		Pool:     pool,
		Redis:    rt.redis,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(rt.app, modules.BuiltInModules(conf, authorizer)...); err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	return rt, nil
}

func connectDB(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, withCode(exitDB, fmt.Errorf("db connect failed: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, withCode(exitDB, fmt.Errorf("db connect failed: %w", err))
	}
	return pool, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// scope binds the pool, tenant and acting user to ctx.
func (rt *runtime) scope(ctx context.Context, g *globalFlags) (context.Context, uuid.UUID, error) {
	tenantID, err := uuid.Parse(g.tenant)
	if err != nil {
		return nil, uuid.Nil, withCode(exitUsage, fmt.Errorf("invalid --tenant: %w", err))
	}
	ctx = composables.WithPool(ctx, rt.pool)
	ctx = composables.WithTenantID(ctx, tenantID)
	ctx = composables.WithLogger(ctx, rt.conf.Logger().WithField("tenant_id", tenantID))
	if g.actor != 0 {
		ctx = composables.WithUserID(ctx, g.actor)
	}
	return ctx, tenantID, nil
}

func (rt *runtime) assignments() *services.AssignmentService {
	return rt.app.Service((*services.AssignmentService)(nil)).(*services.AssignmentService)
}

func (rt *runtime) defaults() *services.DefaultsService {
	return rt.app.Service((*services.DefaultsService)(nil)).(*services.DefaultsService)
}

func (rt *runtime) audits() *services.AuditService {
	return rt.app.Service((*services.AuditService)(nil)).(*services.AuditService)
}

func (rt *runtime) exporter() *services.AuditExporter {
	return rt.app.Service((*services.AuditExporter)(nil)).(*services.AuditExporter)
}

func (rt *runtime) rules() *services.RuleService {
	return rt.app.Service((*services.RuleService)(nil)).(*services.RuleService)
}

func (rt *runtime) eligibility() *services.EligibilityService {
	return rt.app.Service((*services.EligibilityService)(nil)).(*services.EligibilityService)
}

// withRuntime runs fn against a connected runtime and closes it afterwards.
func withRuntime(ctx context.Context, fn func(rt *runtime) error) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(rt)
}
