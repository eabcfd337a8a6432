package services

import (
	"errors"
	"fmt"
)

// AuthError signals that a user has no usable credential for a provider
// and must run the authorize command again.
type AuthError struct {
	Service string // display name, e.g. "Box"
	Command string // chat command, e.g. "/authorize_box"
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("your %s authorization has expired or is invalid; use the %s command to reconnect your account",
		e.Service, e.Command)
}

// AsAuthError extracts an AuthError from an error chain.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
