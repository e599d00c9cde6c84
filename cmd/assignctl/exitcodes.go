package main

import (
	"errors"

	"github.com/iota-uz/autoassign/modules/assignment/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK             = 0
	exitValidation     = 2
	exitUsage          = 3
	exitDB             = 4
	exitForbidden      = 5
	exitScopeViolation = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// serviceCode maps a service error onto an exit code.
func serviceCode(err error) error {
	if err == nil {
		return nil
	}
	switch services.KindOf(err) {
	case services.KindValidation, services.KindNotFound:
		return withCode(exitValidation, err)
	case services.KindForbidden:
		return withCode(exitForbidden, err)
	case services.KindScopeViolation:
		return withCode(exitScopeViolation, err)
	case services.KindPersistence:
		return withCode(exitDB, err)
	}
	return err
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
