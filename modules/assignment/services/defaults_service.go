package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rotation"
	"github.com/iota-uz/autoassign/pkg/authz"
	"github.com/iota-uz/autoassign/pkg/composables"
)

// UpdateDefaultsDTO carries the recognized mutable fields. Nil leaves a field unchanged.
type UpdateDefaultsDTO struct {
	EnableAutomaticAssignment *bool `json:"enable_automatic_assignment"`
	DefaultUserID             *uint `json:"default_user_id" validate:"omitempty,gt=0"`
	ClearDefaultUser          bool  `json:"clear_default_user" validate:"excluded_with=DefaultUserID"`
	RoundRobinEnabled         *bool `json:"round_robin_enabled"`
	TeamScopingEnabled        *bool `json:"team_scoping_enabled"`
}

func (d UpdateDefaultsDTO) ToUpdate() assignmentdefault.Update {
	return assignmentdefault.Update{
		EnableAutomaticAssignment: d.EnableAutomaticAssignment,
		DefaultUserID:             d.DefaultUserID,
		ClearDefaultUser:          d.ClearDefaultUser,
		RoundRobinEnabled:         d.RoundRobinEnabled,
		TeamScopingEnabled:        d.TeamScopingEnabled,
	}
}

// DecodeUpdateDefaults parses a JSON object of fields, rejecting unrecognized keys.
// A JSON null default_user_id clears the default user.
func DecodeUpdateDefaults(data []byte) (UpdateDefaultsDTO, error) {
	var dto UpdateDefaultsDTO
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dto); err != nil {
		return dto, invalidInput("invalid defaults update", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err == nil {
		if v, ok := raw["default_user_id"]; ok && string(bytes.TrimSpace(v)) == "null" {
			dto.ClearDefaultUser = true
		}
	}
	return dto, nil
}

type DefaultsService struct {
	repo       assignmentdefault.Repository
	members    member.Repository
	cursors    rotation.CursorStore
	authorizer authz.Authorizer
	initial    assignmentdefault.Settings
	logger     *logrus.Logger
	group      singleflight.Group
}

func NewDefaultsService(
	repo assignmentdefault.Repository,
	members member.Repository,
	cursors rotation.CursorStore,
	authorizer authz.Authorizer,
	initial assignmentdefault.Settings,
	logger *logrus.Logger,
) *DefaultsService {
	return &DefaultsService{
		repo:       repo,
		members:    members,
		cursors:    cursors,
		authorizer: authorizer,
		initial:    initial,
		logger:     logger,
	}
}

// GetDefaults returns the tenant's defaults, creating them with the configured initial values on first access.
func (s *DefaultsService) GetDefaults(ctx context.Context, tenantID uuid.UUID) (*assignmentdefault.AssignmentDefault, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.getOrCreate(ctx, tenantID)
}

// getOrCreate collapses concurrent first reads of a tenant into one repository call.
// The shared call outlives any single caller's cancellation; each caller still stops on its own ctx.
// Callers inside a transaction read through it directly.
func (s *DefaultsService) getOrCreate(ctx context.Context, tenantID uuid.UUID) (*assignmentdefault.AssignmentDefault, error) {
	initial := assignmentdefault.New(tenantID, s.initial)
	if composables.HasTx(ctx) {
		d, err := s.repo.GetOrCreate(ctx, initial)
		if err != nil {
			return nil, mapError(err)
		}
		return d, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(tenantID.String(), func() (any, error) {
		return s.repo.GetOrCreate(shared, initial)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, mapError(ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, mapError(res.Err)
	}
	return cloneDefaults(res.Val.(*assignmentdefault.AssignmentDefault)), nil
}

func cloneDefaults(shared *assignmentdefault.AssignmentDefault) *assignmentdefault.AssignmentDefault {
	out := *shared
	if shared.DefaultUserID != nil {
		id := *shared.DefaultUserID
		out.DefaultUserID = &id
	}
	return &out
}

func (s *DefaultsService) UpdateDefaults(
	ctx context.Context,
	tenantID uuid.UUID,
	dto UpdateDefaultsDTO,
) (*assignmentdefault.AssignmentDefault, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authorizer, tenantID, authz.ObjectAssignmentDefaults, authz.ActionUpdate); err != nil {
		return nil, err
	}
	if err := validateStruct(dto); err != nil {
		return nil, err
	}
	upd := dto.ToUpdate()
	if upd.IsEmpty() {
		return nil, invalidInput("no recognized fields to update", nil)
	}
	if upd.DefaultUserID != nil {
		if err := s.ensureDefaultUser(ctx, tenantID, *upd.DefaultUserID); err != nil {
			return nil, err
		}
	}
	if _, err := s.getOrCreate(ctx, tenantID); err != nil {
		return nil, err
	}

	updated, err := s.repo.Mutate(ctx, func(d *assignmentdefault.AssignmentDefault) error {
		d.Apply(upd)
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.logger.WithFields(logrus.Fields{
		"tenant_id":                   tenantID,
		"enable_automatic_assignment": updated.EnableAutomaticAssignment,
		"round_robin_enabled":         updated.RoundRobinEnabled,
		"team_scoping_enabled":        updated.TeamScopingEnabled,
	}).Info("assignment defaults updated")
	return updated, nil
}

func (s *DefaultsService) ToggleAutomaticAssignment(ctx context.Context, tenantID uuid.UUID) (*assignmentdefault.AssignmentDefault, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, s.authorizer, tenantID, authz.ObjectAssignmentDefaults, authz.ActionToggle); err != nil {
		return nil, err
	}
	if _, err := s.getOrCreate(ctx, tenantID); err != nil {
		return nil, err
	}
	updated, err := s.repo.Mutate(ctx, func(d *assignmentdefault.AssignmentDefault) error {
		d.EnableAutomaticAssignment = !d.EnableAutomaticAssignment
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"enabled":   updated.EnableAutomaticAssignment,
	}).Info("automatic assignment toggled")
	return updated, nil
}

// ResetRoundRobinCounters sets every rotation cursor of the tenant to zero.
func (s *DefaultsService) ResetRoundRobinCounters(ctx context.Context, tenantID uuid.UUID) error {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, s.authorizer, tenantID, authz.ObjectAssignmentDefaults, authz.ActionReset); err != nil {
		return err
	}
	if _, err := s.getOrCreate(ctx, tenantID); err != nil {
		return err
	}
	if err := s.cursors.Reset(ctx, tenantID); err != nil {
		return mapError(err)
	}
	s.logger.WithField("tenant_id", tenantID).Info("round robin counters reset")
	return nil
}

func (s *DefaultsService) ensureDefaultUser(ctx context.Context, tenantID uuid.UUID, userID uint) error {
	m, err := s.members.GetByID(ctx, userID)
	if errors.Is(err, member.ErrMemberNotFound) {
		return invalidInput("default user does not exist", err)
	}
	if err != nil {
		return mapError(err)
	}
	if m.TenantID != tenantID {
		recordScopeViolation("default_user")
		return crossTenantReference("default user belongs to another tenant")
	}
	if !m.IsActive() {
		return invalidInput("default user is not active", nil)
	}
	return nil
}
