package composables

import (
	"context"
	"errors"

	"github.com/iota-uz/autoassign/pkg/constants"
)

var ErrNoUser = errors.New("user not found in context")

// WithUserID stores the acting user's id.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, constants.UserIDKey, userID)
}

func UseUserID(ctx context.Context) (uint, error) {
	id, ok := ctx.Value(constants.UserIDKey).(uint)
	if !ok || id == 0 {
		return 0, ErrNoUser
	}
	return id, nil
}
