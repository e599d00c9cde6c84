package services

import (
	"context"
	"errors"

	"github.com/iota-uz/autoassign/pkg/composables"
)

// inTx runs fn in a tenant transaction when a pool is available, and directly otherwise.
func inTx(ctx context.Context, fn func(context.Context) error) error {
	if _, err := composables.UsePool(ctx); errors.Is(err, composables.ErrNoPool) {
		return fn(ctx)
	}
	return composables.InTenantTx(ctx, fn)
}
