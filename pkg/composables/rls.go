package composables

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
)

var rlsEnforced atomic.Bool

// SetRLSEnforced makes every tenant transaction set app.current_tenant for row level security policies.
func SetRLSEnforced(enforced bool) { rlsEnforced.Store(enforced) }

func RLSEnforced() bool { return rlsEnforced.Load() }

// ApplyTenantRLS is a no-op unless RLS is enforced. The setting is transaction local.
func ApplyTenantRLS(ctx context.Context, tx pgx.Tx) error {
	if !RLSEnforced() {
		return nil
	}
	tenantID, err := UseTenantID(ctx)
	if err != nil {
		return fmt.Errorf("apply rls: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true)`, tenantID.String()); err != nil {
		return fmt.Errorf("apply rls for tenant %s: %w", tenantID, err)
	}
	return nil
}
