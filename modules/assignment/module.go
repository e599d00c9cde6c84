package assignment

import (
	"fmt"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence"
	"github.com/iota-uz/autoassign/modules/assignment/services"
	"github.com/iota-uz/autoassign/pkg/application"
	"github.com/iota-uz/autoassign/pkg/authz"
	"github.com/iota-uz/autoassign/pkg/configuration"
	"github.com/iota-uz/autoassign/pkg/outbox"
)

// Repositories is the storage the module runs on. A nil set means PostgreSQL.
type Repositories struct {
	Defaults assignmentdefault.Repository
	Cursors  rotation.CursorStore
	Rules    rule.Repository
	Audits   audit.Repository
	Members  member.Repository
}

// InmemRepositories keeps everything in process memory.
func InmemRepositories(members member.Repository) *Repositories {
	store := persistence.NewInmemAssignmentStore()
	return &Repositories{
		Defaults: store.Defaults(),
		Cursors:  store.Cursors(),
		Rules:    persistence.NewInmemRuleRepository(),
		Audits:   persistence.NewInmemAuditRepository(),
		Members:  members,
	}
}

type ModuleOptions struct {
	Options      configuration.AssignmentOptions
	PageSize     int
	MaxPageSize  int
	Authorizer   authz.Authorizer
	Repositories *Repositories
}

// OptionsFromConfig reads module options from the process configuration.
func OptionsFromConfig(conf *configuration.Configuration, authorizer authz.Authorizer) *ModuleOptions {
	return &ModuleOptions{
		Options:     conf.Assignment,
		PageSize:    conf.PageSize,
		MaxPageSize: conf.MaxPageSize,
		Authorizer:  authorizer,
	}
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	opts := m.options
	repos := opts.Repositories
	if repos == nil {
		var err error
		repos, err = postgresRepositories(app, opts.Options)
		if err != nil {
			return err
		}
	}
	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer = authz.AllowAll()
	}
	logger := app.Logger()
	a := opts.Options

	defaultsService := services.NewDefaultsService(
		repos.Defaults,
		repos.Members,
		repos.Cursors,
		authorizer,
		assignmentdefault.Settings{
			AutomaticAssignment: a.DefaultAutoEnabled,
			RoundRobin:          a.DefaultRoundRobin,
			TeamScoping:         a.DefaultTeamScoping,
		},
		logger,
	)
	distributor := services.NewDistributor(repos.Cursors)
	evaluator := services.NewRuleEvaluator(repos.Rules, repos.Members, distributor, a.RuleCacheTTL)
	auditService := services.NewAuditService(
		repos.Audits,
		repos.Members,
		defaultsService,
		authorizer,
		app.EventPublisher(),
		services.RetryPolicy{
			MaxAttempts: a.AuditMaxAttempts,
			Backoff:     a.AuditRetryBackoff,
			MaxBackoff:  a.AuditRetryMaxBackoff,
		},
		opts.PageSize,
		opts.MaxPageSize,
		logger,
	)
	app.RegisterServices(
		defaultsService,
		auditService,
		services.NewAssignmentService(defaultsService, repos.Members, evaluator, distributor, auditService, logger),
		services.NewAuditExporter(auditService, repos.Members, repos.Rules, a.ExportMaxRows),
		services.NewRuleService(repos.Rules, repos.Members, evaluator, authorizer, logger),
		services.NewEligibilityService(repos.Members, defaultsService),
	)
	return nil
}

func (m *Module) Name() string {
	return "assignment"
}

func postgresRepositories(app application.Application, a configuration.AssignmentOptions) (*Repositories, error) {
	if app.DB() == nil {
		return nil, fmt.Errorf("assignment: database pool is required")
	}
	var cursors rotation.CursorStore = persistence.NewPgCursorStore()
	if a.ScopedCursorBackend == configuration.CursorBackendRedis {
		if app.Redis() == nil {
			return nil, fmt.Errorf("assignment: redis cursor backend selected but no redis client configured")
		}
		cursors = persistence.NewRedisCursorRepository(app.Redis(), cursors)
	}
	var publisher outbox.Publisher
	if a.OutboxEnabled {
		publisher = outbox.NewPublisher()
	}
	return &Repositories{
		Defaults: persistence.NewDefaultsRepository(),
		Cursors:  cursors,
		Rules:    persistence.NewRuleRepository(),
		Audits:   persistence.NewAuditRepository(publisher),
		Members:  persistence.NewMemberRepository(),
	}, nil
}
