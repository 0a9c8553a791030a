package rpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	domainerrors "identity/internal/domain/errors"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Validator decodes message payloads and checks their validate tags.
type Validator struct {
	validate *validator.Validate
}

// NewValidator returns a Validator reporting fields by their JSON names.
func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return &Validator{validate: validate}
}

// Bind unmarshals data into dst and validates it.
// Failures are reported as ErrValidationFailed carrying a readable description.
func (v *Validator) Bind(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.WithStack(domainerrors.ErrValidationFailed.WithDetails("malformed payload"))
	}

	if err := v.validate.Struct(dst); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return errors.WithStack(err)
		}

		return errors.WithStack(domainerrors.ErrValidationFailed.WithDetails(describe(validationErrs)))
	}

	return nil
}

func describe(validationErrs validator.ValidationErrors) string {
	messages := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		messages = append(messages, describeField(fieldErr))
	}

	return strings.Join(messages, "; ")
}

func describeField(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldErr.Field())
	case "email":
		return fmt.Sprintf("%s must be an email", fieldErr.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fieldErr.Field(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s is invalid", fieldErr.Field())
	}
}
