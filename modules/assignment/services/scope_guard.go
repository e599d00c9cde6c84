package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/pkg/composables"
)

// scopeTenant binds tenantID to ctx. A tenant already carried by ctx must agree with it.
func scopeTenant(ctx context.Context, tenantID uuid.UUID) (context.Context, error) {
	if tenantID == uuid.Nil {
		return nil, invalidInput("tenant id is required", nil)
	}
	if existing, err := composables.UseTenantID(ctx); err == nil && existing != tenantID {
		recordScopeViolation("context")
		return nil, scopeViolation("tenant does not match the caller identity")
	}
	return composables.WithTenantID(ctx, tenantID), nil
}

func ensureTenant(tenantID, owner uuid.UUID, entity string) error {
	if owner != tenantID {
		recordScopeViolation(entity)
		return scopeViolation(entity + " belongs to another tenant")
	}
	return nil
}
