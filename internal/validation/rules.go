// Package validation provides reusable validation rules for key lifecycle
// inputs, built on jellydator/validation.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/convosec/keycore/internal/errors"
)

var keyNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]*$`)

// WrapValidationError converts a validation error into an
// ErrInvalidInput-classed application error, preserving the field messages.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NotBlank rejects strings that are empty after trimming whitespace.
var NotBlank = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_not_blank_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_not_blank", "cannot be blank")
	}
	return nil
})

// KeyName restricts key names to a DNS-ish charset: alphanumeric start,
// then alphanumerics, dots, underscores, and dashes.
var KeyName = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_key_name_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if !keyNameRegex.MatchString(s) {
		return validation.NewError(
			"validation_key_name",
			"must start with an alphanumeric character and contain only alphanumerics, dots, underscores, and dashes",
		)
	}
	return nil
})

// TenantID rejects tenant identifiers with whitespace or path separators,
// which would break audit filtering.
var TenantID = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_tenant_id_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if strings.ContainsAny(s, " \t\n/") {
		return validation.NewError("validation_tenant_id", "cannot contain whitespace or slashes")
	}
	return nil
})
