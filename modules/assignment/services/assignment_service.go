package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
)

var tracer = otel.Tracer("autoassign-assignment")

type OutcomeStatus string

const (
	StatusAssigned    OutcomeStatus = "assigned"
	StatusNotAssigned OutcomeStatus = "not_assigned"
	StatusUnassigned  OutcomeStatus = "unassigned"
	StatusFailed      OutcomeStatus = "failed"
)

const (
	ReasonAutomaticAssignmentDisabled = "automatic_assignment_disabled"
	ReasonNoEligibleTarget            = "no_eligible_target"
	ReasonDefaultUser                 = "default_user"
	ReasonAuditPersistenceFailed      = "audit_persistence_failed"
)

// Record is the business record being assigned.
type Record struct {
	Type       audit.RecordType `json:"record_type" validate:"required,oneof=lead deal contact"`
	ID         string           `json:"record_id" validate:"required,max=255"`
	Attributes rule.Attributes  `json:"attributes"`
	// RequesterID is the creating user; it narrows eligibility when team scoping is enabled.
	RequesterID *uint `json:"requester_id,omitempty"`
}

type Outcome struct {
	Status         OutcomeStatus        `json:"status"`
	Reason         string               `json:"reason,omitempty"`
	UserID         *uint                `json:"user_id,omitempty"`
	AssignmentType audit.AssignmentType `json:"assignment_type,omitempty"`
	RuleID         *int64               `json:"rule_id,omitempty"`
	Audit          *audit.Audit         `json:"-"`
}

type AssignmentService struct {
	defaults    *DefaultsService
	members     member.Repository
	evaluator   *RuleEvaluator
	distributor *Distributor
	audits      *AuditService
	logger      *logrus.Logger
}

func NewAssignmentService(
	defaults *DefaultsService,
	members member.Repository,
	evaluator *RuleEvaluator,
	distributor *Distributor,
	audits *AuditService,
	logger *logrus.Logger,
) *AssignmentService {
	return &AssignmentService{
		defaults:    defaults,
		members:     members,
		evaluator:   evaluator,
		distributor: distributor,
		audits:      audits,
		logger:      logger,
	}
}

// Assign picks a user for rec: first matching rule, then round robin, then the default user.
// Every decision from the rule step onward is audited exactly once. The returned Outcome is
// never nil; on error its status is failed and the caller decides whether to retry.
func (s *AssignmentService) Assign(ctx context.Context, tenantID uuid.UUID, rec Record) (*Outcome, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "assignment.Assign", trace.WithAttributes(
		attribute.String("tenant.id", tenantID.String()),
		attribute.String("record.type", string(rec.Type)),
		attribute.String("record.id", rec.ID),
	))
	defer span.End()

	out, err := s.assign(ctx, tenantID, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if out == nil {
			out = &Outcome{Status: StatusFailed}
		}
		s.logger.WithFields(logrus.Fields{
			"tenant_id":   tenantID,
			"record_type": rec.Type,
			"record_id":   rec.ID,
		}).WithError(err).Error("assignment failed")
	}
	span.SetAttributes(
		attribute.String("assignment.status", string(out.Status)),
		attribute.String("assignment.type", string(out.AssignmentType)),
	)
	recordDecision(out.Status, string(out.AssignmentType), time.Since(start))
	return out, err
}

func (s *AssignmentService) assign(ctx context.Context, tenantID uuid.UUID, rec Record) (*Outcome, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(rec); err != nil {
		return nil, err
	}
	defaults, err := s.defaults.getOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !defaults.EnableAutomaticAssignment {
		return &Outcome{Status: StatusNotAssigned, Reason: ReasonAutomaticAssignmentDisabled}, nil
	}

	access, err := teamAccessFor(ctx, s.members, defaults.TeamScopingEnabled, rec.RequesterID)
	if err != nil {
		return nil, err
	}
	eligibleMs, err := eligibleMembers(ctx, tenantID, s.members, access)
	if err != nil {
		return nil, err
	}
	eligible := memberIDs(eligibleMs)

	entry := &audit.Audit{RecordType: rec.Type, RecordID: rec.ID}

	match, err := s.evaluator.Match(ctx, tenantID, rec.Attributes, eligible)
	if err != nil {
		return nil, err
	}
	if match != nil && match.Resolved {
		userID, ruleID := match.UserID, match.Rule.ID
		entry.AssignedUserID = &userID
		entry.RuleID = &ruleID
		entry.AssignmentType = audit.TypeRule
		entry.Context = match.context()
		return s.record(ctx, tenantID, entry, StatusAssigned, "")
	}

	var unresolved *rule.Rule
	if match != nil {
		unresolved = match.Rule
		s.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"record_id": rec.ID,
			"rule_id":   unresolved.ID,
		}).Warn("matched rule has no eligible target")
	}

	if defaults.RoundRobinEnabled {
		sel, ok, err := s.distributor.Next(ctx, tenantID, rotation.TenantScope, eligible)
		if err != nil {
			return nil, err
		}
		if ok {
			userID := sel.UserID
			entry.AssignedUserID = &userID
			entry.AssignmentType = audit.TypeRoundRobin
			entry.Context = withUnresolvedRule(sel.context(), unresolved)
			return s.record(ctx, tenantID, entry, StatusAssigned, "")
		}
	}

	if defaults.DefaultUserID != nil {
		usable, err := s.defaultUserUsable(ctx, tenantID, *defaults.DefaultUserID)
		if err != nil {
			return nil, err
		}
		if usable {
			userID := *defaults.DefaultUserID
			entry.AssignedUserID = &userID
			entry.AssignmentType = audit.TypeDefault
			entry.Context = withUnresolvedRule(map[string]any{"reason": ReasonDefaultUser}, unresolved)
			return s.record(ctx, tenantID, entry, StatusAssigned, "")
		}
	}

	entry.AssignmentType = audit.TypeDefault
	entry.Context = withUnresolvedRule(map[string]any{"reason": ReasonNoEligibleTarget}, unresolved)
	return s.record(ctx, tenantID, entry, StatusUnassigned, ReasonNoEligibleTarget)
}

func (s *AssignmentService) record(
	ctx context.Context,
	tenantID uuid.UUID,
	entry *audit.Audit,
	status OutcomeStatus,
	reason string,
) (*Outcome, error) {
	if err := s.audits.Record(ctx, tenantID, entry); err != nil {
		return &Outcome{
			Status:         StatusFailed,
			Reason:         ReasonAuditPersistenceFailed,
			AssignmentType: entry.AssignmentType,
		}, err
	}
	return &Outcome{
		Status:         status,
		Reason:         reason,
		UserID:         entry.AssignedUserID,
		AssignmentType: entry.AssignmentType,
		RuleID:         entry.RuleID,
		Audit:          entry,
	}, nil
}

// defaultUserUsable reports whether the configured default user is an active member of the tenant.
func (s *AssignmentService) defaultUserUsable(ctx context.Context, tenantID uuid.UUID, userID uint) (bool, error) {
	m, err := s.members.GetByID(ctx, userID)
	if errors.Is(err, member.ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	if m.TenantID != tenantID {
		recordScopeViolation("default_user")
		s.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"user_id":   userID,
		}).Warn("default user belongs to another tenant")
		return false, nil
	}
	return m.IsActive(), nil
}

// RecordRef identifies a record without attributes.
type RecordRef struct {
	Type audit.RecordType `validate:"required,oneof=lead deal contact"`
	ID   string           `validate:"required,max=255"`
}

// RecordManualAssignment audits an operator's explicit assignment of a record to userID.
func (s *AssignmentService) RecordManualAssignment(
	ctx context.Context,
	tenantID uuid.UUID,
	ref RecordRef,
	userID uint,
	actorID *uint,
) (*audit.Audit, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(ref); err != nil {
		return nil, err
	}
	m, err := s.members.GetByID(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	if err := ensureTenant(tenantID, m.TenantID, "user"); err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, invalidInput("user is not active", nil)
	}
	entry := &audit.Audit{
		RecordType:     ref.Type,
		RecordID:       ref.ID,
		AssignedUserID: &userID,
		AssignmentType: audit.TypeManual,
		Context:        map[string]any{},
	}
	if actorID != nil {
		entry.Context["actor_id"] = *actorID
	}
	if err := s.audits.Record(ctx, tenantID, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func withUnresolvedRule(ctx map[string]any, r *rule.Rule) map[string]any {
	if r != nil {
		ctx["unresolved_rule_id"] = r.ID
	}
	return ctx
}
