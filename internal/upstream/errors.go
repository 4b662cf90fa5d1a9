package upstream

import (
	"errors"
	"fmt"
)

// The remote auth service can fail four ways, and callers treat each
// differently: transport failures must never clear an existing session,
// auth rejections become store failures, validation rejections go back to the
// originating form, and server faults surface as generic retry messaging.

type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("auth service unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type AuthRejectedError struct {
	Status  int
	Message string
}

func (e *AuthRejectedError) Error() string {
	return fmt.Sprintf("authentication rejected (%d): %s", e.Status, e.Message)
}

type ValidationError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.Status, e.Message)
}

type ServerFaultError struct {
	Status  int
	Message string
}

func (e *ServerFaultError) Error() string {
	return fmt.Sprintf("auth service fault (%d): %s", e.Status, e.Message)
}

func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

// IsAuthRejected reports whether err is an authentication rejection, and if so
// returns the server-supplied message.
func IsAuthRejected(err error) (string, bool) {
	var a *AuthRejectedError
	if errors.As(err, &a) {
		return a.Message, true
	}
	return "", false
}

func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

func IsServerFault(err error) bool {
	var s *ServerFaultError
	return errors.As(err, &s)
}
