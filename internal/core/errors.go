package core

import (
	"errors"
	"fmt"
)

// Error categories. Use errors.Is against these to classify any error
// returned by the engine packages.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// ValidationError reports a malformed input record field
// ("merchant", "amount", "date", ...).
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConfigurationError reports a malformed budget rule.
type ConfigurationError struct {
	Rule string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid budget rule %s: %v", e.Rule, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NotFoundError reports a rule, category or expense that was referenced
// but does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationField returns the offending field when err is a validation
// error, or "" otherwise.
func ValidationField(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Field
	}
	return ""
}
