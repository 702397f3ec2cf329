package validation

import (
	"fmt"
	"strings"
)

// FieldError rejects one request field.
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// NewFieldError creates a FieldError.
func NewFieldError(field, value, message string) *FieldError {
	return &FieldError{Field: field, Value: value, Message: message}
}

// FieldErrors collects the rejected fields of a request in the order they
// were checked. The first entry is the one reported to clients.
type FieldErrors []*FieldError

// Error reports the first rejected field and names any others, e.g.
// "user_id: user_id is required (also invalid: module_id)".
func (e FieldErrors) Error() string {
	first := e.First()
	if first == nil {
		return ""
	}
	if len(e) == 1 {
		return first.Error()
	}
	return fmt.Sprintf("%s (also invalid: %s)", first.Error(), strings.Join(e.Fields()[1:], ", "))
}

// Add records a rejected field.
func (e *FieldErrors) Add(field, value, message string) {
	*e = append(*e, NewFieldError(field, value, message))
}

// HasErrors reports whether any field was rejected.
func (e FieldErrors) HasErrors() bool {
	return len(e) > 0
}

// First returns the first rejected field, or nil.
func (e FieldErrors) First() *FieldError {
	if len(e) == 0 {
		return nil
	}
	return e[0]
}

// Fields returns the rejected field names, without duplicates.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	seen := make(map[string]bool, len(e))
	for _, fe := range e {
		if seen[fe.Field] {
			continue
		}
		seen[fe.Field] = true
		fields = append(fields, fe.Field)
	}
	return fields
}
