package domain

import "fmt"

// RejectionError is a business rule violation with a message meant for the caller.
// It unwraps to one of the sentinel errors of this package.
type RejectionError struct {
	Err     error
	Message string
}

func Reject(err error, format string, args ...any) error {
	return &RejectionError{Err: err, Message: fmt.Sprintf(format, args...)}
}

func (e *RejectionError) Error() string {
	return e.Message
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}
