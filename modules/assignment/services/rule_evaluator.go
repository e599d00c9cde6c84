package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
)

// Evaluate returns the first active rule in (priority, id) order whose conditions all hold.
func Evaluate(rules []*rule.Rule, attrs rule.Attributes) (*rule.Rule, bool) {
	return rule.FirstMatch(rules, attrs)
}

// RuleResolution is a matched rule together with the user its target resolved to.
type RuleResolution struct {
	Rule      *rule.Rule
	UserID    uint
	Resolved  bool
	Selection *Selection
}

func (r RuleResolution) context() map[string]any {
	matched := make([]map[string]any, 0, len(r.Rule.Conditions))
	for _, c := range r.Rule.Conditions {
		matched = append(matched, map[string]any{
			"field":    c.Field,
			"operator": string(c.Operator),
			"value":    c.Value,
		})
	}
	ctx := map[string]any{
		"rule_id":            r.Rule.ID,
		"rule_name":          r.Rule.Name,
		"priority":           r.Rule.Priority,
		"matched_conditions": matched,
		"target":             r.Rule.Target.String(),
	}
	if r.Selection != nil {
		ctx["team_rotation"] = r.Selection.context()
	}
	return ctx
}

type RuleEvaluator struct {
	rules       rule.Repository
	members     member.Repository
	distributor *Distributor
	cache       *ruleCache
}

func NewRuleEvaluator(rules rule.Repository, members member.Repository, distributor *Distributor, cacheTTL time.Duration) *RuleEvaluator {
	return &RuleEvaluator{
		rules:       rules,
		members:     members,
		distributor: distributor,
		cache:       newRuleCache(cacheTTL),
	}
}

// ActiveRules loads the tenant's active rules sorted by (priority, id). ctx must carry the tenant.
// The cached set is only served while the repository reports the version it was loaded at.
func (e *RuleEvaluator) ActiveRules(ctx context.Context, tenantID uuid.UUID) ([]*rule.Rule, error) {
	version, err := e.rules.Version(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	if cached, ok := e.cache.Get(tenantID, version); ok {
		return cached, nil
	}
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	for _, r := range rules {
		if err := ensureTenant(tenantID, r.TenantID, "rule"); err != nil {
			return nil, err
		}
	}
	rule.Sort(rules)
	e.cache.Set(tenantID, version, rules)
	return rules, nil
}

func (e *RuleEvaluator) Invalidate(tenantID uuid.UUID, reason string) {
	e.cache.InvalidateTenant(tenantID, reason)
}

// Match evaluates attrs against the active rules and resolves the first match to one eligible user.
// A matched rule whose target has no eligible user comes back with Resolved false.
func (e *RuleEvaluator) Match(ctx context.Context, tenantID uuid.UUID, attrs rule.Attributes, eligible []uint) (*RuleResolution, error) {
	rules, err := e.ActiveRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	matched, ok := Evaluate(rules, attrs)
	if !ok {
		return nil, nil
	}
	res := &RuleResolution{Rule: matched}

	switch matched.Target.Kind {
	case rule.TargetUser:
		if slices.Contains(eligible, matched.Target.UserID) {
			res.UserID, res.Resolved = matched.Target.UserID, true
			return res, nil
		}
		if err := e.ensureUserInTenant(ctx, tenantID, matched.Target.UserID); err != nil {
			return nil, err
		}
		return res, nil
	case rule.TargetTeam:
		team, err := e.members.GetTeam(ctx, matched.Target.TeamID)
		if errors.Is(err, member.ErrTeamNotFound) {
			return res, nil
		}
		if err != nil {
			return nil, mapError(err)
		}
		if err := ensureTenant(tenantID, team.TenantID, "team"); err != nil {
			return nil, err
		}
		candidates := make([]uint, 0, len(team.MemberIDs))
		for _, id := range team.MemberIDs {
			if slices.Contains(eligible, id) {
				candidates = append(candidates, id)
			}
		}
		sel, ok, err := e.distributor.Next(ctx, tenantID, rotation.TeamScope(team.ID), candidates)
		if err != nil {
			return nil, err
		}
		if ok {
			res.UserID, res.Resolved, res.Selection = sel.UserID, true, &sel
		}
		return res, nil
	default:
		return nil, invalidInput("rule has no target", nil)
	}
}

func (e *RuleEvaluator) ensureUserInTenant(ctx context.Context, tenantID uuid.UUID, userID uint) error {
	m, err := e.members.GetByID(ctx, userID)
	if errors.Is(err, member.ErrMemberNotFound) {
		return nil
	}
	if err != nil {
		return mapError(err)
	}
	return ensureTenant(tenantID, m.TenantID, "user")
}
