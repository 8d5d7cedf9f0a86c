package application

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var candidateIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,99}$`)

// registerCustomValidators registers the suite-specific validation
// functions with v.
func registerCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("candidateid", validateCandidateID); err != nil {
		return fmt.Errorf("failed to register candidateid validator: %w", err)
	}
	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateCandidateID accepts identifiers made of letters, digits,
// underscores, dots, and hyphens that start with a letter or digit.
func validateCandidateID(fl validator.FieldLevel) bool {
	return candidateIDPattern.MatchString(fl.Field().String())
}
