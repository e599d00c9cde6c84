package serrors

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// ValidationErrors maps a field name to its rendered message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v[field])
	}
	return strings.Join(parts, "; ")
}

var (
	translatorOnce sync.Once
	translator     ut.Translator
)

// RegisterTranslations installs English messages on v. It is safe to call once per validator.
func RegisterTranslations(v *validator.Validate) error {
	translatorOnce.Do(func() {
		english := en.New()
		translator, _ = ut.New(english, english).GetTranslator("en")
	})
	return en_translations.RegisterDefaultTranslations(v, translator)
}

// ProcessValidatorErrors renders validator errors keyed by struct field name.
func ProcessValidatorErrors(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		if translator != nil {
			out[fe.Field()] = fe.Translate(translator)
			continue
		}
		out[fe.Field()] = fe.Error()
	}
	return out
}
