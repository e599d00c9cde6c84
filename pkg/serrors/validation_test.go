package serrors

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `validate:"required"`
	Limit int    `validate:"gte=0,lte=10"`
}

func TestProcessValidatorErrors(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterTranslations(v))

	err := v.Struct(sample{Limit: 11})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	out := ProcessValidatorErrors(verrs)
	require.Equal(t, "Name is a required field", out["Name"])
	require.Contains(t, out["Limit"], "10 or less")
	require.Contains(t, out.Error(), "Limit: ")
}
