// Copyright 2025 PLSync Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"errors"
	"fmt"
)

// AuthFailureCode is the PLCAPI fault code for a caller whose role does
// not permit the method.
const AuthFailureCode = 103

// ErrAuthorization matches faults caused by an insufficient role. Retrying
// with the same credential cannot succeed.
var ErrAuthorization = errors.New("authorization failure")

// Fault is an error returned by the remote directory.
type Fault struct {
	Method string
	Code   int
	Msg    string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: fault %d: %s", f.Method, f.Code, f.Msg)
}

// Is reports authorization faults as ErrAuthorization.
func (f *Fault) Is(target error) bool {
	return target == ErrAuthorization && f.Code == AuthFailureCode
}

// IsAuthorization reports whether err is an authorization fault.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrAuthorization)
}
