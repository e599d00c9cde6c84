package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
)

type cachedRules struct {
	rules     []*rule.Rule
	version   rule.Version
	expiresAt time.Time
}

// ruleCache keeps the active rules of each tenant for at most ttl, keyed by the rule set version
// they were loaded at. A zero ttl disables caching.
type ruleCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]cachedRules
}

func newRuleCache(ttl time.Duration) *ruleCache {
	return &ruleCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]cachedRules),
	}
}

func (c *ruleCache) Get(tenantID uuid.UUID, version rule.Version) ([]*rule.Rule, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	hit := ok && entry.version == version && c.now().Before(entry.expiresAt)
	recordCacheRequest(hit)
	if !hit {
		return nil, false
	}
	return entry.rules, true
}

func (c *ruleCache) Set(tenantID uuid.UUID, version rule.Version, rules []*rule.Rule) {
	if c == nil || c.ttl <= 0 || tenantID == uuid.Nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = cachedRules{rules: rules, version: version, expiresAt: c.now().Add(c.ttl)}
}

func (c *ruleCache) InvalidateTenant(tenantID uuid.UUID, reason string) {
	if c == nil || tenantID == uuid.Nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
	recordCacheInvalidate(reason)
}
