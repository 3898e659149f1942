package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	app_errors "ragchat/client/internal/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateRequest checks a payload against the rules in its `validate` tags
// and returns a wrapped ErrValidation describing every failed field.
func validateRequest(payload any) error {
	err := getValidator().Struct(payload)
	if err == nil {
		return nil
	}
	return formatValidation(err)
}

// validateMessage checks already-trimmed message content against the
// non-empty and length rules. Length is counted in characters, not bytes.
func validateMessage(content string, maxLength int) error {
	err := getValidator().Var(content, fmt.Sprintf("required,max=%d", maxLength))
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return formatValidation(err)
	}
	switch validationErrors[0].Tag() {
	case "required":
		return fmt.Errorf("%w: message is empty", app_errors.ErrValidation)
	case "max":
		return fmt.Errorf("%w: message is longer than %d characters", app_errors.ErrValidation, maxLength)
	default:
		return formatValidation(err)
	}
}

func formatValidation(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: an unexpected error occurred during validation: %s", app_errors.ErrValidation, err.Error())
	}

	var errorMessages []string
	for _, fieldErr := range validationErrors {
		errorMessages = append(errorMessages, fmt.Sprintf("Field '%s' failed on the '%s' tag", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("%w: %s", app_errors.ErrValidation, strings.Join(errorMessages, "; "))
}
