package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

type AssignmentDefault struct {
	TenantID                  string
	EnableAutomaticAssignment bool
	DefaultUserID             sql.NullInt64
	RoundRobinEnabled         bool
	TeamScopingEnabled        bool
	RotationCursor            int64
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

type AssignmentRule struct {
	ID           int64
	TenantID     string
	Name         string
	Priority     int
	Conditions   json.RawMessage
	TargetUserID sql.NullInt64
	TargetTeamID sql.NullString
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AssignmentAudit struct {
	ID             int64
	TenantID       string
	RecordType     string
	RecordID       string
	AssignedUserID sql.NullInt64
	RuleID         sql.NullInt64
	AssignmentType string
	Context        json.RawMessage
	CreatedAt      time.Time
}

type User struct {
	ID        uint
	TenantID  string
	FirstName string
	LastName  string
	Email     string
	Status    string
}

type Group struct {
	ID       string
	TenantID string
	Name     string
}
