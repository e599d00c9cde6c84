package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/pkg/composables"
)

type ruleKey struct {
	tenantID uuid.UUID
	id       int64
}

type InmemRuleRepository struct {
	mu      sync.Mutex
	seq     int64
	revs    map[uuid.UUID]int64
	storage *guardedMap[ruleKey, *rule.Rule]
}

func NewInmemRuleRepository() *InmemRuleRepository {
	return &InmemRuleRepository{
		storage: newGuardedMap[ruleKey, *rule.Rule](),
		revs:    map[uuid.UUID]int64{},
	}
}

// Version counts writes per tenant, so every Upsert yields a new version.
func (r *InmemRuleRepository) Version(ctx context.Context) (rule.Version, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return rule.Version{}, err
	}
	count := int64(len(r.storage.All(func(rl *rule.Rule) bool { return rl.TenantID == tenantID })))
	r.mu.Lock()
	defer r.mu.Unlock()
	return rule.Version{Count: count, Stamp: r.revs[tenantID]}, nil
}

func (r *InmemRuleRepository) ListActive(ctx context.Context) ([]*rule.Rule, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rl := range all {
		if rl.IsActive {
			out = append(out, rl)
		}
	}
	return out, nil
}

func (r *InmemRuleRepository) List(ctx context.Context) ([]*rule.Rule, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var out []*rule.Rule
	for _, rl := range r.storage.All(nil) {
		if rl.TenantID == tenantID {
			cp := *rl
			out = append(out, &cp)
		}
	}
	rule.Sort(out)
	return out, nil
}

func (r *InmemRuleRepository) GetByID(ctx context.Context, id int64) (*rule.Rule, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	rl, found := r.storage.Load(ruleKey{tenantID: tenantID, id: id})
	if !found {
		return nil, rule.ErrRuleNotFound
	}
	cp := *rl
	return &cp, nil
}

func (r *InmemRuleRepository) Upsert(ctx context.Context, rl *rule.Rule) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rl.TenantID = tenantID
	now := time.Now()
	rl.ID = 0
	rl.CreatedAt = now
	for _, existing := range r.storage.All(nil) {
		if existing.TenantID == tenantID && existing.Name == rl.Name {
			rl.ID = existing.ID
			rl.CreatedAt = existing.CreatedAt
			break
		}
	}
	if rl.ID == 0 {
		r.seq++
		rl.ID = r.seq
	}
	rl.UpdatedAt = now
	r.revs[tenantID]++
	stored := *rl
	r.storage.Store(ruleKey{tenantID: tenantID, id: rl.ID}, &stored)
	return nil
}
