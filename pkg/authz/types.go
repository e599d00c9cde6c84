package authz

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Guarded objects and their actions.
const (
	ObjectAssignmentDefaults = "assignment.defaults"
	ObjectAssignmentAudits   = "assignment.audits"
	ObjectAssignmentRules    = "assignment.rules"

	ActionView   = "view"
	ActionUpdate = "update"
	ActionToggle = "toggle"
	ActionReset  = "reset"
	ActionExport = "export"
	ActionImport = "import"
)

type Request struct {
	Subject string
	Domain  string
	Object  string
	Action  string
}

// NewRequest lowercases object and action; an empty action becomes "*".
func NewRequest(subject, domain, object, action string) Request {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		action = "*"
	}
	return Request{
		Subject: subject,
		Domain:  domain,
		Object:  strings.ToLower(strings.TrimSpace(object)),
		Action:  action,
	}
}

// SubjectForUser renders tenant:{domain}:user:{id}. User 0 is the system actor.
func SubjectForUser(tenantID uuid.UUID, userID uint) string {
	user := "system"
	if userID != 0 {
		user = fmt.Sprint(userID)
	}
	return "tenant:" + DomainFromTenant(tenantID) + ":user:" + user
}

// DomainFromTenant maps uuid.Nil to "global".
func DomainFromTenant(id uuid.UUID) string {
	if id == uuid.Nil {
		return "global"
	}
	return id.String()
}
