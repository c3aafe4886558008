// Package validation checks mission drafts with validator/v10 and converts
// failures to VALIDATION domain errors.
package validation

import (
	"errors"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/mapflag/mapflag-client/internal/domain"
	domainerrors "github.com/mapflag/mapflag-client/internal/errors"
)

// messages renders a failed rule. Rules without an entry read "is invalid".
var messages = map[string]func(param string) string{
	"required":  func(string) string { return "is required" },
	"notblank":  func(string) string { return "must not be blank" },
	"category":  func(string) string { return "must be a known category" },
	"latitude":  func(string) string { return "must be between -90 and 90" },
	"longitude": func(string) string { return "must be between -180 and 180" },
	"max":       func(p string) string { return "must not exceed " + p + " characters" },
	"min":       func(p string) string { return "must be at least " + p + " characters" },
	"oneof":     func(p string) string { return "must be one of: " + p },
}

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator reporting JSON field names, with the "category"
// and "notblank" rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := domain.CategoryByID(int(fl.Field().Int()))
		return ok
	})

	return &Validator{v: v}
}

// Validate checks s. Failures come back as a VALIDATION error whose details
// map each JSON field to a message, e.g. {"content": "is required"}.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := details[fe.Field()]; seen {
			continue
		}
		details[fe.Field()] = describe(fe)
	}

	fields := make([]string, 0, len(details))
	for f := range details {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	var msg strings.Builder
	msg.WriteString("validation failed: ")
	for i, f := range fields {
		if i > 0 {
			msg.WriteString("; ")
		}
		msg.WriteString(f + " " + details[f])
	}
	return domainerrors.ValidationWithDetails(msg.String(), details)
}

func describe(fe validator.FieldError) string {
	if render, ok := messages[fe.Tag()]; ok {
		return render(fe.Param())
	}
	return "is invalid"
}
