// Package validation provides validation for deployment request fields.
// Identifiers end up in stack names, Kubernetes object names and URL paths,
// so the accepted alphabet is the intersection of what all three allow.
package validation

import (
	"fmt"
)

const (
	// MaxUserIDLength keeps derived object names within the 63 character
	// DNS label limit, including the prefix and the collision suffix.
	MaxUserIDLength = 40
	// MaxModuleIDLength bounds the module segment of route paths.
	MaxModuleIDLength = 128
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// isAlphaNum returns true if the byte is an ASCII letter or digit.
func isAlphaNum(b byte) bool {
	return isAlpha(b) || isNum(b)
}

// validateIdentifier checks that value is non-empty, at most maxLen bytes,
// starts with a letter or digit and contains only letters, digits, '-' or '_'.
func validateIdentifier(value, entityType string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("%s is required", entityType)
	}
	if len(value) > maxLen {
		return fmt.Errorf("%s must be at most %d characters", entityType, maxLen)
	}
	if !isAlphaNum(value[0]) {
		return fmt.Errorf("%s must start with a letter or number", entityType)
	}
	for _, b := range []byte(value) {
		if !isAlphaNum(b) && b != '-' && b != '_' {
			return fmt.Errorf("%s can only contain letters, numbers, hyphens, or underscores", entityType)
		}
	}
	return nil
}

// ValidateUserID validates a user identifier.
func ValidateUserID(userID string) error {
	return validateIdentifier(userID, "user_id", MaxUserIDLength)
}

// ValidateModuleID validates a simulation module identifier.
func ValidateModuleID(moduleID string) error {
	return validateIdentifier(moduleID, "module_id", MaxModuleIDLength)
}

// ValidateDeploy validates the identifiers of a deploy request and returns
// every failing field.
func ValidateDeploy(userID, moduleID string) FieldErrors {
	var errs FieldErrors
	if err := ValidateUserID(userID); err != nil {
		errs.Add("user_id", userID, err.Error())
	}
	if err := ValidateModuleID(moduleID); err != nil {
		errs.Add("module_id", moduleID, err.Error())
	}
	return errs
}
