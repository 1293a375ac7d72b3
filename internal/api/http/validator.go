package http

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/helpdesk/pkg/util"
)

// AppValidator wraps go-playground/validator for request DTOs.
type AppValidator struct {
	validator *validator.Validate
}

// NewAppValidator creates a new AppValidator.
func NewAppValidator() *AppValidator {
	return &AppValidator{validator: validator.New()}
}

// Validate checks struct tags and maps failures to a validation error.
func (v *AppValidator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
			details := map[string]any{}
			for _, fe := range validationErrors {
				details[fe.Field()] = fmt.Sprintf("failed on '%s' validation", fe.Tag())
			}
			return util.NewValidationError("invalid request payload", details)
		}
		return util.NewValidationError("invalid request payload", nil)
	}
	return nil
}
