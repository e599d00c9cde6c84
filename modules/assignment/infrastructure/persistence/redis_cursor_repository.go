package persistence

import (
	"context"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
)

// Cursor values are stored as "<epoch>:<next>". A value written under an older epoch reads as zero,
// so bumping the tenant epoch resets every scope in one atomic step.

// advanceScript returns the index handed out and stores the next cursor, both reduced modulo ARGV[1].
// KEYS[1] is the cursor, KEYS[2] the tenant epoch.
var advanceScript = redis.NewScript(`
local n = tonumber(ARGV[1])
local epoch = redis.call('GET', KEYS[2]) or '0'
local c = 0
local stored = redis.call('GET', KEYS[1])
if stored then
  local sep = string.find(stored, ':', 1, true)
  if sep and string.sub(stored, 1, sep - 1) == epoch then
    c = tonumber(string.sub(stored, sep + 1)) or 0
  end
end
local idx = c % n
redis.call('SET', KEYS[1], epoch .. ':' .. ((idx + 1) % n))
return idx
`)

// pruneScript deletes KEYS[1] unless it was written under the current epoch in KEYS[2].
var pruneScript = redis.NewScript(`
if KEYS[1] == KEYS[2] then
  return 0
end
local prefix = (redis.call('GET', KEYS[2]) or '0') .. ':'
local stored = redis.call('GET', KEYS[1])
if stored and string.sub(stored, 1, #prefix) ~= prefix then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisCursorRepository keeps team and rule scoped cursors in Redis. The tenant-wide cursor
// stays on assignment_defaults and is served by the fallback store.
type RedisCursorRepository struct {
	redis    redis.UniversalClient
	prefix   string
	fallback rotation.CursorStore
}

func NewRedisCursorRepository(client redis.UniversalClient, fallback rotation.CursorStore) *RedisCursorRepository {
	return &RedisCursorRepository{redis: client, prefix: "assignment:rr", fallback: fallback}
}

func (r *RedisCursorRepository) Advance(ctx context.Context, tenantID uuid.UUID, scope rotation.Scope, n int) (rotation.Advance, error) {
	if n <= 0 {
		return rotation.Advance{}, nil
	}
	if scope.IsTenant() {
		return r.fallback.Advance(ctx, tenantID, scope, n)
	}
	keys := []string{r.key(tenantID, string(scope)), r.key(tenantID, "epoch")}
	idx, err := advanceScript.Run(ctx, r.redis, keys, n).Int64()
	if err != nil {
		return rotation.Advance{}, gerrors.Wrapf(err, "advance redis cursor %s", scope)
	}
	return rotation.Advance{Index: int(idx), Next: (idx + 1) % int64(n)}, nil
}

// Reset bumps the tenant epoch, then prunes cursor keys left from earlier epochs.
// Advances racing the prune already run under the new epoch and are kept.
func (r *RedisCursorRepository) Reset(ctx context.Context, tenantID uuid.UUID) error {
	epochKey := r.key(tenantID, "epoch")
	if err := r.redis.Incr(ctx, epochKey).Err(); err != nil {
		return gerrors.Wrap(err, "bump redis cursor epoch")
	}
	iter := r.redis.Scan(ctx, 0, r.key(tenantID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := pruneScript.Run(ctx, r.redis, []string{iter.Val(), epochKey}).Err(); err != nil {
			return gerrors.Wrap(err, "prune redis cursor")
		}
	}
	if err := iter.Err(); err != nil {
		return gerrors.Wrap(err, "scan redis cursors")
	}
	return r.fallback.Reset(ctx, tenantID)
}

func (r *RedisCursorRepository) key(tenantID uuid.UUID, suffix string) string {
	return fmt.Sprintf("%s:{%s}:%s", r.prefix, tenantID.String(), suffix)
}
