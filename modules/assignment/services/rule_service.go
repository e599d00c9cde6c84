package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/pkg/authz"
)

type ImportResult struct {
	Imported int
	Rules    []*rule.Rule
}

type RuleService struct {
	repo       rule.Repository
	members    member.Repository
	evaluator  *RuleEvaluator
	authorizer authz.Authorizer
	logger     *logrus.Logger
}

func NewRuleService(
	repo rule.Repository,
	members member.Repository,
	evaluator *RuleEvaluator,
	authorizer authz.Authorizer,
	logger *logrus.Logger,
) *RuleService {
	return &RuleService{repo: repo, members: members, evaluator: evaluator, authorizer: authorizer, logger: logger}
}

// ImportRules upserts every rule of a YAML or TOML file by name, all or nothing.
func (s *RuleService) ImportRules(ctx context.Context, tenantID uuid.UUID, filename string, data []byte) (*ImportResult, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authorizer, tenantID, authz.ObjectAssignmentRules, authz.ActionImport); err != nil {
		return nil, err
	}
	rules, err := rule.Parse(tenantID, filename, data)
	if err != nil {
		return nil, invalidInput("invalid rule file", err)
	}
	for _, r := range rules {
		if err := s.checkTarget(ctx, tenantID, r.Target); err != nil {
			return nil, err
		}
	}

	err = inTx(ctx, func(txCtx context.Context) error {
		for _, r := range rules {
			if err := s.repo.Upsert(txCtx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.evaluator.Invalidate(tenantID, "import")
	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"file":      filename,
		"rules":     len(rules),
	}).Info("assignment rules imported")
	return &ImportResult{Imported: len(rules), Rules: rules}, nil
}

// ListRules returns every rule of the tenant, active or not, in evaluation order.
func (s *RuleService) ListRules(ctx context.Context, tenantID uuid.UUID) ([]*rule.Rule, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	for _, r := range rules {
		if err := ensureTenant(tenantID, r.TenantID, "rule"); err != nil {
			return nil, err
		}
	}
	rule.Sort(rules)
	return rules, nil
}

func (s *RuleService) checkTarget(ctx context.Context, tenantID uuid.UUID, target rule.Target) error {
	switch target.Kind {
	case rule.TargetUser:
		m, err := s.members.GetByID(ctx, target.UserID)
		if errors.Is(err, member.ErrMemberNotFound) {
			return invalidInput("rule target user does not exist", err)
		}
		if err != nil {
			return mapError(err)
		}
		return ensureTenant(tenantID, m.TenantID, "user")
	case rule.TargetTeam:
		team, err := s.members.GetTeam(ctx, target.TeamID)
		if errors.Is(err, member.ErrTeamNotFound) {
			return invalidInput("rule target team does not exist", err)
		}
		if err != nil {
			return mapError(err)
		}
		return ensureTenant(tenantID, team.TenantID, "team")
	default:
		return invalidInput("rule has no target", nil)
	}
}
