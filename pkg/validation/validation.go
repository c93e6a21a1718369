// Package validation validates decoded request structs with go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "legitify/pkg/domain-errors"
)

var defaultValidator = newValidator()

// messages maps a failed tag to its message; %[1]s is the JSON field name and
// %[2]s the tag parameter.
var messages = map[string]string{
	"required": "%[1]s is required",
	"email":    "%[1]s must be a valid email",
	"base64":   "%[1]s must be valid base64",
	"uuid":     "%[1]s must be a valid uuid",
	"min":      "%[1]s must be at least %[2]s",
	"max":      "%[1]s must be at most %[2]s",
	"oneof":    "%[1]s must be one of [%[2]s]",
	"notblank": "%[1]s must not be blank",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks req's validate tags and reports the first failure as a
// validation error.
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage describes the first field error in err using the field's JSON name.
func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}

	fe := fieldErrs[0]
	field := fe.Field()
	if field == "" {
		field = fe.StructField()
	}
	if format, ok := messages[fe.ActualTag()]; ok {
		return fmt.Sprintf(format, field, fe.Param())
	}
	return field + " is invalid"
}
