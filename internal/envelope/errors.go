package envelope

import (
	"errors"
	"fmt"
)

// ErrorCode is the integer carried by an Error Record across the broker.
type ErrorCode int

const (
	CodeInsufficientFunds ErrorCode = 402
	CodeNotPossible       ErrorCode = 403
	CodeNotFound          ErrorCode = 404
	CodeInternal          ErrorCode = 500
)

// ErrorKind is the decoded form of an ErrorCode.
type ErrorKind int

const (
	KindUndefined ErrorKind = iota
	KindNotFound
	KindInsufficientFunds
	KindNotPossible
)

var (
	ErrNotFound          = errors.New("entity not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotPossible       = errors.New("purchase not possible")
	ErrUndefined         = errors.New("undefined purchase order failure")

	// ErrTimeout and ErrTransport never cross the broker; they are raised by the client.
	ErrTimeout   = errors.New("purchase order reply timed out")
	ErrTransport = errors.New("purchase order transport failure")
)

func (c ErrorCode) Kind() ErrorKind {
	switch c {
	case CodeNotFound:
		return KindNotFound
	case CodeInsufficientFunds:
		return KindInsufficientFunds
	case CodeNotPossible:
		return KindNotPossible
	default:
		return KindUndefined
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindNotPossible:
		return "NotPossible"
	default:
		return "Undefined"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindInsufficientFunds:
		return ErrInsufficientFunds
	case KindNotPossible:
		return ErrNotPossible
	default:
		return ErrUndefined
	}
}

// ErrorRecord is the tagged payload of a failed purchase order. The edge service keeps
// every record it receives in its audit log.
type ErrorRecord struct {
	ID      string    `json:"id,omitempty"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Err decodes the record into a *ReplyError that matches one of the Err* sentinels.
func (r ErrorRecord) Err() error {
	return &ReplyError{Kind: r.Code.Kind(), Record: r}
}

// ReplyError is a business error raised by the executor and carried back in a reply.
type ReplyError struct {
	Kind   ErrorKind
	Record ErrorRecord
}

func (e *ReplyError) Error() string {
	if e.Record.Message == "" {
		return fmt.Sprintf("%s (code %d)", e.Kind.sentinel(), e.Record.Code)
	}
	return e.Record.Message
}

func (e *ReplyError) Unwrap() error {
	return e.Kind.sentinel()
}

// AsReplyError extracts the reply error from err, if any.
func AsReplyError(err error) (*ReplyError, bool) {
	var replyErr *ReplyError
	if errors.As(err, &replyErr) {
		return replyErr, true
	}
	return nil, false
}
