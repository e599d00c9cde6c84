package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/pkg/authz"
	"github.com/iota-uz/autoassign/pkg/eventbus"
	"github.com/iota-uz/autoassign/pkg/outbox"
)

// RetryPolicy bounds audit insert retries.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// AuditFilter is the caller-facing audit query.
type AuditFilter struct {
	RecordType     audit.RecordType     `validate:"omitempty,oneof=lead deal contact"`
	RecordID       string               `validate:"omitempty,max=255"`
	AssignedUserID *uint                `validate:"omitempty,gt=0"`
	RuleID         *int64               `validate:"omitempty,gt=0"`
	AssignmentType audit.AssignmentType `validate:"omitempty,oneof=rule round_robin default manual"`
	DateFrom       *time.Time
	DateTo         *time.Time
	// RequesterID narrows rows to the requester's teams when team scoping is enabled.
	RequesterID *uint
}

type AuditPage struct {
	Rows       []*audit.Audit
	Total      int64
	Page       int
	PerPage    int
	TotalPages int
}

type StatsFilter struct {
	RecordType audit.RecordType `validate:"omitempty,oneof=lead deal contact"`
	DateFrom   *time.Time
	DateTo     *time.Time
}

type AuditService struct {
	repo       audit.Repository
	members    member.Repository
	defaults   *DefaultsService
	authorizer authz.Authorizer
	publisher  eventbus.EventBus
	retry      RetryPolicy
	pageSize   int
	maxPage    int
	logger     *logrus.Logger
	sleep      func(context.Context, time.Duration) error
}

func NewAuditService(
	repo audit.Repository,
	members member.Repository,
	defaults *DefaultsService,
	authorizer authz.Authorizer,
	publisher eventbus.EventBus,
	retry RetryPolicy,
	pageSize, maxPageSize int,
	logger *logrus.Logger,
) *AuditService {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &AuditService{
		repo:       repo,
		members:    members,
		defaults:   defaults,
		authorizer: authorizer,
		publisher:  publisher,
		retry:      retry,
		pageSize:   pageSize,
		maxPage:    maxPageSize,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Record appends a. Failed inserts are retried with exponential backoff; exhausting the
// attempts yields a persistence ServiceError.
func (s *AuditService) Record(ctx context.Context, tenantID uuid.UUID, a *audit.Audit) error {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if !a.AssignmentType.Valid() {
		return invalidInput("unknown assignment type "+string(a.AssignmentType), nil)
	}
	a.TenantID = tenantID

	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		a.ID = 0
		lastErr = s.repo.Create(ctx, a)
		recordAuditAttempt(lastErr == nil)
		if lastErr == nil {
			s.publish(a)
			return nil
		}
		s.logger.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"record_id": a.RecordID,
			"attempt":   attempt,
		}).WithError(lastErr).Warn("audit insert failed")
		if attempt == s.retry.MaxAttempts {
			break
		}
		if err := s.sleep(ctx, outbox.Backoff(attempt, s.retry.Backoff, s.retry.MaxBackoff)); err != nil {
			lastErr = err
			break
		}
	}
	return persistenceFailure("audit row could not be persisted", lastErr)
}

func (s *AuditService) publish(a *audit.Audit) {
	if s.publisher == nil || s.publisher.SubscribersCount() == 0 {
		return
	}
	cp := *a
	s.publisher.Publish(audit.NewDecidedEvent(&cp))
}

// ListAudits returns one page ordered by created_at then id, newest first.
func (s *AuditService) ListAudits(ctx context.Context, tenantID uuid.UUID, filter AuditFilter, page, perPage int) (*AuditPage, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authorizer, tenantID, authz.ObjectAssignmentAudits, authz.ActionView); err != nil {
		return nil, err
	}
	page, perPage = s.normalizePage(page, perPage)
	params, err := s.findParams(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	params.Limit = perPage
	params.Offset = (page - 1) * perPage

	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	total, err := s.repo.Count(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return &AuditPage{Rows: rows, Total: total, Page: page, PerPage: perPage, TotalPages: totalPages}, nil
}

// GetAssignmentStats aggregates audit rows by assignment type, rule and user.
func (s *AuditService) GetAssignmentStats(ctx context.Context, tenantID uuid.UUID, filter StatsFilter) (*audit.Stats, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authorizer, tenantID, authz.ObjectAssignmentAudits, authz.ActionView); err != nil {
		return nil, err
	}
	if err := validateStruct(filter); err != nil {
		return nil, err
	}
	if err := checkRange(filter.DateFrom, filter.DateTo); err != nil {
		return nil, err
	}
	stats, err := s.repo.Stats(ctx, &audit.StatsParams{
		RecordType: filter.RecordType,
		From:       filter.DateFrom,
		To:         filter.DateTo,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return stats, nil
}

func (s *AuditService) findParams(ctx context.Context, tenantID uuid.UUID, filter AuditFilter) (*audit.FindParams, error) {
	if err := validateStruct(filter); err != nil {
		return nil, err
	}
	if err := checkRange(filter.DateFrom, filter.DateTo); err != nil {
		return nil, err
	}
	params := &audit.FindParams{
		RecordType:     filter.RecordType,
		RecordID:       filter.RecordID,
		AssignedUserID: filter.AssignedUserID,
		RuleID:         filter.RuleID,
		AssignmentType: filter.AssignmentType,
		From:           filter.DateFrom,
		To:             filter.DateTo,
	}
	if filter.RequesterID == nil {
		return params, nil
	}
	defaults, err := s.defaults.getOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	access, err := teamAccessFor(ctx, s.members, defaults.TeamScopingEnabled, filter.RequesterID)
	if err != nil {
		return nil, err
	}
	if access.Restricted() {
		params.VisibleUserIDs = access.VisibleUserIDs()
	}
	return params, nil
}

func (s *AuditService) normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = s.pageSize
	}
	if perPage < 1 {
		perPage = 25
	}
	if s.maxPage > 0 && perPage > s.maxPage {
		perPage = s.maxPage
	}
	return page, perPage
}

func checkRange(from, to *time.Time) error {
	if from != nil && to != nil && !from.IsZero() && !to.IsZero() && to.Before(*from) {
		return invalidInput("date_to is before date_from", nil)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
