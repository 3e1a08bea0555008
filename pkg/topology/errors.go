// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"
	"strings"
)

// FieldError is a single missing or invalid declaration field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigurationError lists every problem found while constructing one
// declared record.
type ConfigurationError struct {
	Kind   string
	Name   string
	Errors []FieldError
}

// AddError records an invalid field.
func (e *ConfigurationError) AddError(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ConfigurationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	name := e.Name
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Kind, name, strings.Join(msgs, "; "))
}

// Has reports whether field has been flagged.
func (e *ConfigurationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// err returns nil when no field was flagged so callers can return it
// directly.
func (e *ConfigurationError) err() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
