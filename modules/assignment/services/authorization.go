package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/pkg/authz"
	"github.com/iota-uz/autoassign/pkg/composables"
)

// authorize checks the acting user in ctx against object/action in the tenant's domain.
// A missing user is evaluated as the system subject.
func authorize(ctx context.Context, authorizer authz.Authorizer, tenantID uuid.UUID, object, action string) error {
	if authorizer == nil {
		return nil
	}
	userID, _ := composables.UseUserID(ctx)
	req := authz.NewRequest(
		authz.SubjectForUser(tenantID, userID),
		authz.DomainFromTenant(tenantID),
		object,
		action,
	)
	return mapError(authorizer.Authorize(ctx, req))
}
