package persistence

import (
	"database/sql"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence/models"
)

func nullUint(v *uint) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func uintPtr(v sql.NullInt64) *uint {
	if !v.Valid {
		return nil
	}
	u := uint(v.Int64)
	return &u
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func parseTenantID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func toDBDefault(d *assignmentdefault.AssignmentDefault) *models.AssignmentDefault {
	return &models.AssignmentDefault{
		TenantID:                  d.TenantID.String(),
		EnableAutomaticAssignment: d.EnableAutomaticAssignment,
		DefaultUserID:             nullUint(d.DefaultUserID),
		RoundRobinEnabled:         d.RoundRobinEnabled,
		TeamScopingEnabled:        d.TeamScopingEnabled,
		RotationCursor:            d.RotationCursor,
		CreatedAt:                 d.CreatedAt,
		UpdatedAt:                 d.UpdatedAt,
	}
}

func toDomainDefault(row *models.AssignmentDefault) *assignmentdefault.AssignmentDefault {
	return &assignmentdefault.AssignmentDefault{
		TenantID:                  parseTenantID(row.TenantID),
		EnableAutomaticAssignment: row.EnableAutomaticAssignment,
		DefaultUserID:             uintPtr(row.DefaultUserID),
		RoundRobinEnabled:         row.RoundRobinEnabled,
		TeamScopingEnabled:        row.TeamScopingEnabled,
		RotationCursor:            row.RotationCursor,
		CreatedAt:                 row.CreatedAt,
		UpdatedAt:                 row.UpdatedAt,
	}
}

func toDBRule(r *rule.Rule) (*models.AssignmentRule, error) {
	conditions := r.Conditions
	if conditions == nil {
		conditions = []rule.Condition{}
	}
	raw, err := json.Marshal(conditions)
	if err != nil {
		return nil, errors.Wrap(err, "marshal rule conditions")
	}
	row := &models.AssignmentRule{
		ID:         r.ID,
		TenantID:   r.TenantID.String(),
		Name:       r.Name,
		Priority:   r.Priority,
		Conditions: raw,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	switch r.Target.Kind {
	case rule.TargetUser:
		row.TargetUserID = sql.NullInt64{Int64: int64(r.Target.UserID), Valid: true}
	case rule.TargetTeam:
		row.TargetTeamID = sql.NullString{String: r.Target.TeamID.String(), Valid: true}
	}
	return row, nil
}

func toDomainRule(row *models.AssignmentRule) (*rule.Rule, error) {
	var conditions []rule.Condition
	if len(row.Conditions) > 0 {
		dec := json.NewDecoder(bytesReader(row.Conditions))
		dec.UseNumber()
		if err := dec.Decode(&conditions); err != nil {
			return nil, errors.Wrapf(err, "decode conditions of rule %d", row.ID)
		}
	}
	r := &rule.Rule{
		ID:         row.ID,
		TenantID:   parseTenantID(row.TenantID),
		Name:       row.Name,
		Priority:   row.Priority,
		Conditions: conditions,
		IsActive:   row.IsActive,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	switch {
	case row.TargetUserID.Valid:
		r.Target = rule.UserTarget(uint(row.TargetUserID.Int64))
	case row.TargetTeamID.Valid:
		teamID, err := uuid.Parse(row.TargetTeamID.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse team target of rule %d", row.ID)
		}
		r.Target = rule.TeamTarget(teamID)
	}
	return r, nil
}

func toDBAudit(a *audit.Audit) (*models.AssignmentAudit, error) {
	ctxPayload := a.Context
	if ctxPayload == nil {
		ctxPayload = map[string]any{}
	}
	raw, err := json.Marshal(ctxPayload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal audit context")
	}
	return &models.AssignmentAudit{
		ID:             a.ID,
		TenantID:       a.TenantID.String(),
		RecordType:     string(a.RecordType),
		RecordID:       a.RecordID,
		AssignedUserID: nullUint(a.AssignedUserID),
		RuleID:         nullInt64(a.RuleID),
		AssignmentType: string(a.AssignmentType),
		Context:        raw,
		CreatedAt:      a.CreatedAt,
	}, nil
}

func toDomainAudit(row *models.AssignmentAudit) (*audit.Audit, error) {
	ctxPayload := map[string]any{}
	if len(row.Context) > 0 {
		dec := json.NewDecoder(bytesReader(row.Context))
		dec.UseNumber()
		if err := dec.Decode(&ctxPayload); err != nil {
			return nil, errors.Wrapf(err, "decode context of audit %d", row.ID)
		}
	}
	return &audit.Audit{
		ID:             row.ID,
		TenantID:       parseTenantID(row.TenantID),
		RecordType:     audit.RecordType(row.RecordType),
		RecordID:       row.RecordID,
		AssignedUserID: uintPtr(row.AssignedUserID),
		RuleID:         int64Ptr(row.RuleID),
		AssignmentType: audit.AssignmentType(row.AssignmentType),
		Context:        ctxPayload,
		CreatedAt:      row.CreatedAt,
	}, nil
}

func toDomainMember(row *models.User) *member.Member {
	return &member.Member{
		ID:        row.ID,
		TenantID:  parseTenantID(row.TenantID),
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Email:     row.Email,
		Status:    member.Status(row.Status),
	}
}
