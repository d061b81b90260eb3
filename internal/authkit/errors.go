package authkit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validationMessage turns a gin binding failure into the field-level
// message reported to the caller. Validation failures are never retried.
func validationMessage(bindErr error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(bindErr, &validationErrors) || len(validationErrors) == 0 {
		return "invalid request body"
	}
	first := validationErrors[0]
	fieldName := strings.ToLower(first.Field())
	switch first.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldName)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fieldName)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fieldName, first.Param())
	default:
		return fmt.Sprintf("%s is invalid", fieldName)
	}
}
