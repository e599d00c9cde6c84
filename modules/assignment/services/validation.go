package services

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/autoassign/pkg/constants"
	"github.com/iota-uz/autoassign/pkg/serrors"
)

var translationsOnce sync.Once

func validateStruct(v any) error {
	translationsOnce.Do(func() {
		_ = serrors.RegisterTranslations(constants.Validate)
	})
	err := constants.Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return invalidInput("invalid input", serrors.ProcessValidatorErrors(verrs))
	}
	return invalidInput("invalid input", err)
}
