// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/plsync/pkg/directory"
)

// AmbiguityError reports a lookup that should match at most one record but
// matched several. The directory needs manual repair before a rerun.
type AmbiguityError struct {
	Kind    string
	Key     string
	Records []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous %s %s: %d records match: %s",
		e.Kind, e.Key, len(e.Records), strings.Join(e.Records, "; "))
}

// MissingError reports a record that must exist but does not.
type MissingError struct {
	Kind string
	Key  string
	Hint string
}

func (e *MissingError) Error() string {
	msg := fmt.Sprintf("missing %s %s", e.Kind, e.Key)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// AuthorizationError wraps a directory fault caused by the session's role.
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%v: the session's role cannot perform this call; "+
		"refresh the session with an admin or PI account and rerun", e.Err)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// withGuidance wraps authorization faults in an AuthorizationError.
func withGuidance(err error) error {
	var authErr *AuthorizationError
	if err == nil || errors.As(err, &authErr) || !directory.IsAuthorization(err) {
		return err
	}
	return &AuthorizationError{Err: err}
}

func ambiguous[T any](kind, key string, recs []T) *AmbiguityError {
	e := &AmbiguityError{Kind: kind, Key: key}
	for _, r := range recs {
		e.Records = append(e.Records, fmt.Sprintf("%+v", r))
	}
	return e
}

// atMostOne returns the only record in recs, or nil when recs is empty.
func atMostOne[T any](kind, key string, recs []T) (*T, error) {
	switch len(recs) {
	case 0:
		return nil, nil
	case 1:
		return &recs[0], nil
	default:
		return nil, ambiguous(kind, key, recs)
	}
}

// exactlyOne returns the only record in recs.
func exactlyOne[T any](kind, key, hint string, recs []T) (T, error) {
	var zero T
	switch len(recs) {
	case 0:
		return zero, &MissingError{Kind: kind, Key: key, Hint: hint}
	case 1:
		return recs[0], nil
	default:
		return zero, ambiguous(kind, key, recs)
	}
}
