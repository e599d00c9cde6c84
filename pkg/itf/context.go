package itf

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/autoassign/pkg/composables"
)

// TestEnvironment holds a migrated database and a tenant-scoped context.
// Statements run on the pool so concurrent callers see each other's commits.
type TestEnvironment struct {
	Ctx      context.Context
	Pool     *pgxpool.Pool
	TenantID uuid.UUID

	dbOpts string
}

// Setup creates a fresh database for the test, or skips when PostgreSQL is unreachable.
func Setup(tb testing.TB) *TestEnvironment {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := CreateDB(ctx, tb.Name()); err != nil {
		tb.Skipf("postgres unavailable: %v", err)
	}
	pool, err := NewPool(DbOpts(tb.Name()))
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(pool.Close)

	if err := Migrate(ctx, pool); err != nil {
		tb.Fatal(err)
	}

	tenantID, err := CreateTenant(context.Background(), pool)
	if err != nil {
		tb.Fatal(err)
	}

	return &TestEnvironment{
		Ctx:      composables.WithTenantID(composables.WithPool(context.Background(), pool), tenantID),
		Pool:     pool,
		TenantID: tenantID,
		dbOpts:   DbOpts(tb.Name()),
	}
}

// AppRole owns no tables, so row level security policies apply to its sessions.
const AppRole = "autoassign_app"

var appRoleGrants = []string{
	`DO $$ BEGIN
		CREATE ROLE ` + AppRole + ` NOLOGIN;
	EXCEPTION WHEN duplicate_object OR unique_violation THEN NULL;
	END $$`,
	`GRANT USAGE ON SCHEMA public TO ` + AppRole,
	`GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO ` + AppRole,
	`GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO ` + AppRole,
}

// AppRolePool opens a second pool on the test database whose sessions run as AppRole.
func (te *TestEnvironment) AppRolePool(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, stmt := range appRoleGrants {
		if _, err := te.Pool.Exec(ctx, stmt); err != nil {
			tb.Fatal(err)
		}
	}
	config, err := pgxpool.ParseConfig(te.dbOpts)
	if err != nil {
		tb.Fatal(err)
	}
	config.MaxConns = 4
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET ROLE "+AppRole)
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(pool.Close)
	return pool
}

// ForTenant returns a context scoped to another tenant on the same pool.
func (te *TestEnvironment) ForTenant(tenantID uuid.UUID) context.Context {
	return composables.WithTenantID(composables.WithPool(context.Background(), te.Pool), tenantID)
}

func CreateTenant(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO tenants (id, name, domain) VALUES ($1, $2, $3)`,
		id, "Test Tenant "+id.String()[:8], id.String()[:8]+".test.com",
	)
	return id, err
}

// CreateUser inserts a user and returns its id.
func CreateUser(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, firstName, status string) (uint, error) {
	var id uint
	err := pool.QueryRow(ctx,
		`INSERT INTO users (tenant_id, first_name, last_name, email, status) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		tenantID, firstName, "Test", firstName+"-"+uuid.NewString()[:8]+"@example.com", status,
	).Scan(&id)
	return id, err
}

// CreateTeam inserts a group with the given members.
func CreateTeam(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, name string, members ...uint) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO groups (id, tenant_id, name) VALUES ($1, $2, $3)`, id, tenantID, name); err != nil {
		return uuid.Nil, err
	}
	for _, userID := range members {
		if _, err := pool.Exec(ctx, `INSERT INTO group_users (group_id, user_id) VALUES ($1, $2)`, id, userID); err != nil {
			return uuid.Nil, err
		}
	}
	return id, nil
}
