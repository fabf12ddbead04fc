package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyOwner       = errors.New("empty owner id")
	ErrOwnerChanged     = errors.New("owner of an existing record cannot change")
)

// ValidationError reports bad user input. It is returned before any write.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RemoteError wraps any failure of the remote ledger or the AI service.
// Cause is the human readable reason surfaced to callers.
type RemoteError struct {
	Op    string
	Cause string
	Err   error
}

// NewRemoteError builds a RemoteError from an underlying failure.
func NewRemoteError(op string, err error) *RemoteError {
	cause := "unknown remote failure"
	if err != nil {
		cause = err.Error()
	}
	return &RemoteError{Op: op, Cause: cause, Err: err}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Op, e.Cause)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NotFoundError is a lookup miss.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsRemote(err error) bool {
	var r *RemoteError
	return errors.As(err, &r)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
