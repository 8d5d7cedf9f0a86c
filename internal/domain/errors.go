package domain

import (
	"errors"
	"fmt"
)

// Common domain errors returned while constructing configurations.
var (
	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrGuardrailViolation indicates that a configuration breaks a named guardrail.
	ErrGuardrailViolation = errors.New("guardrail violation")
)

// GuardrailCustomSigmoidX0NonNeg is the identifier of the guardrail that
// rejects per-method custom sigmoids with a negative midpoint. Other tools
// match on this exact string.
const GuardrailCustomSigmoidX0NonNeg = "GR-S2-CUSTOM-SIGMOID-X0-NONNEG"

// GuardrailError reports a configuration rejected by a named guardrail.
// Its message always starts with the guardrail identifier.
type GuardrailError struct {
	// ID is the guardrail identifier, e.g. GuardrailCustomSigmoidX0NonNeg.
	ID string

	// Detail describes the offending value.
	Detail string
}

// Error implements the error interface for GuardrailError.
func (e *GuardrailError) Error() string {
	return fmt.Sprintf("%s: %s", e.ID, e.Detail)
}

// Unwrap lets errors.Is match ErrGuardrailViolation.
func (e *GuardrailError) Unwrap() error { return ErrGuardrailViolation }

// NewGuardrailError creates a GuardrailError for the given guardrail.
func NewGuardrailError(id, detail string) *GuardrailError {
	return &GuardrailError{ID: id, Detail: detail}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets errors.Is match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
