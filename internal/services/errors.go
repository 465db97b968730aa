package services

import (
	"errors"
	"slices"
	"strings"
)

var ErrReportNotFound = errors.New("report not found")

// ValidationError is a caller fault. Nothing has been written when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a caller fault.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func requireApp(appID string) error {
	if appID == "" {
		return invalid("app_id", "app_id is required")
	}
	return nil
}

func oneOf(field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return invalid(field, "invalid "+field+": must be one of "+joinOr(allowed))
	}
	return nil
}

func joinOr(values []string) string {
	if len(values) < 2 {
		return strings.Join(values, "")
	}
	return strings.Join(values[:len(values)-1], ", ") + " or " + values[len(values)-1]
}
