package errors

import (
	"math"
	"strings"
	"unicode"
)

// ValidateName validates a recipe or item name for safety and correctness.
// Names end up in file names (run directories) and solver variable names,
// so the rules are conservative:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - Maximum length of 128 characters
func ValidateName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "name cannot be empty")
	}

	if len(name) > 128 {
		return New(ErrCodeInvalidInput, "name too long (max 128 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "name contains invalid control characters")
		}
	}

	for _, pattern := range []string{"..", "/", "\\"} {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidInput, "name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateRate checks that a requested production rate is a positive, finite number.
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return New(ErrCodeInvalidInput, "rate must be a finite number")
	}
	if rate <= 0 {
		return New(ErrCodeInvalidInput, "rate must be positive (got %g)", rate)
	}
	return nil
}

// ValidateForce checks a source force weight. Zero is allowed and means
// unset; negative weights would reward distance and are rejected.
func ValidateForce(force float64) error {
	if math.IsNaN(force) || math.IsInf(force, 0) {
		return New(ErrCodeInvalidInput, "force must be a finite number")
	}
	if force < 0 {
		return New(ErrCodeInvalidInput, "force cannot be negative (got %g)", force)
	}
	return nil
}

// ValidatePath validates a relative file path taken from a plan file.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No path traversal sequences (..)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	return nil
}
