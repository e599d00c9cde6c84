package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/assignmentdefault"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/pkg/authz"
)

type ErrorKind string

const (
	KindScopeViolation ErrorKind = "scope_violation"
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindForbidden      ErrorKind = "forbidden"
	KindPersistence    ErrorKind = "persistence"
)

const (
	CodeScopeViolation       = "ASSIGNMENT_SCOPE_VIOLATION"
	CodeCrossTenantReference = "ASSIGNMENT_CROSS_TENANT_REFERENCE"
	CodeInvalidInput         = "ASSIGNMENT_INVALID_INPUT"
	CodeNotFound             = "ASSIGNMENT_NOT_FOUND"
	CodeForbidden            = "ASSIGNMENT_FORBIDDEN"
	CodeConflict             = "ASSIGNMENT_CONFLICT"
	CodePersistenceFailure   = "ASSIGNMENT_PERSISTENCE_FAILURE"
	CodeInternal             = "ASSIGNMENT_INTERNAL"
)

type ServiceError struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(kind ErrorKind, status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Kind: kind, Status: status, Code: code, Message: message, Cause: cause}
}

func scopeViolation(message string) *ServiceError {
	return newServiceError(KindScopeViolation, http.StatusForbidden, CodeScopeViolation, message, nil)
}

func crossTenantReference(message string) *ServiceError {
	return newServiceError(KindValidation, http.StatusUnprocessableEntity, CodeCrossTenantReference, message, nil)
}

func invalidInput(message string, cause error) *ServiceError {
	return newServiceError(KindValidation, http.StatusBadRequest, CodeInvalidInput, message, cause)
}

func notFound(message string, cause error) *ServiceError {
	return newServiceError(KindNotFound, http.StatusNotFound, CodeNotFound, message, cause)
}

func persistenceFailure(message string, cause error) *ServiceError {
	return newServiceError(KindPersistence, http.StatusServiceUnavailable, CodePersistenceFailure, message, cause)
}

// KindOf returns the kind of the first ServiceError in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// mapError converts repository, authz and postgres errors into ServiceErrors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, authz.ErrForbidden):
		return newServiceError(KindForbidden, http.StatusForbidden, CodeForbidden, "permission denied", err)
	case errors.Is(err, assignmentdefault.ErrNotFound),
		errors.Is(err, rule.ErrRuleNotFound),
		errors.Is(err, member.ErrMemberNotFound),
		errors.Is(err, member.ErrTeamNotFound):
		return notFound("not found", err)
	}
	return mapPgErrorToServiceError(err)
}

func mapPgErrorToServiceError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound("not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		return newServiceError(KindValidation, http.StatusConflict, CodeConflict, "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(KindValidation, http.StatusUnprocessableEntity, CodeInvalidInput, "referenced row does not exist", err)
	case "23514": // check_violation
		return invalidInput("check constraint violated", err)
	case "42501": // insufficient_privilege, raised by row-level security
		return newServiceError(KindScopeViolation, http.StatusForbidden, CodeScopeViolation, "row-level security rejected the statement", err)
	default:
		return persistenceFailure(fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
