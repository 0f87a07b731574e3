package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/ckd-api/pkg/errors"
)

var messages = map[string]string{
	"required": "field is required",
	"email":    "invalid email format",
	"min":      "value is too short",
	"max":      "value is too long",
	"oneof":    "value is not one of the allowed values",
	"uuid":     "value must be a UUID",
	"url":      "value must be a URL",
	"gte":      "value is too small",
	"lte":      "value is too large",
	"notblank": "field must not be blank",
}

// Validator checks struct tags and reports field-level errors
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	Configure(v)
	return &Validator{v: v}
}

// Configure installs the json tag name function and custom rules on v. It is
// shared with gin's binding engine so both report the same field names.
func Configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				return true
			}
			f = f.Elem()
		}
		return f.Kind() != reflect.String || strings.TrimSpace(f.String()) != ""
	})
}

// Validate returns a validation AppError listing every failing field, or nil.
func (v *Validator) Validate(obj interface{}) error {
	if err := v.v.Struct(obj); err != nil {
		return Translate(err)
	}
	return nil
}

// Translate converts validator errors into a validation AppError. Other
// errors are returned as a generic bad request.
func Translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.BadRequest("invalid request", err)
	}

	fields := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed on %s", fe.Tag())
		}
		if fe.Param() != "" && (fe.Tag() == "oneof" || fe.Tag() == "max" || fe.Tag() == "min") {
			msg = fmt.Sprintf("%s (%s)", msg, fe.Param())
		}
		fields = append(fields, apperrors.FieldError{
			Field:   fe.Field(),
			Message: msg,
		})
	}
	return apperrors.Validation("validation failed", fields...)
}
