// Package rpcerr defines the typed errors returned by the GUI RPC client.
//
// Every failure surfaced by the client is an *Error carrying a Kind. Callers
// match on kinds (and, for remote failures, on daemon error codes) with
// errors.Is against the sentinel values declared here:
//
//	if errors.Is(err, rpcerr.ErrIncorrectPassword) {
//	    ...
//	}
//	if errors.Is(err, rpcerr.ErrConnectionRefused) {
//	    ...
//	}
package rpcerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error.
type Kind int

const (
	// KindUnknown is the zero Kind. It is never produced by the client.
	KindUnknown Kind = iota
	// KindConnectTimeout means the TCP connect did not finish in time.
	KindConnectTimeout
	// KindConnectionRefused means nothing is listening on the daemon port.
	KindConnectionRefused
	// KindDisconnected means the peer closed the connection, or the session
	// was already closed.
	KindDisconnected
	// KindReadTimeout means a request/response exchange did not finish in time.
	KindReadTimeout
	// KindProtocol means the reply parsed but had an unexpected shape.
	KindProtocol
	// KindAuthenticationFailed means the daemon rejected the shared secret.
	KindAuthenticationFailed
	// KindInvalidArgument means the caller passed a value the client refuses
	// to put on the wire.
	KindInvalidArgument
	// KindRemote means the daemon reported an error code or message.
	KindRemote
	// KindPollTimeout means a submit+poll operation did not resolve within
	// its attempt budget or deadline.
	KindPollTimeout
	// KindMalformedResponse means the reply could not be parsed as XML.
	KindMalformedResponse
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConnectTimeout:
		return "connect timeout"
	case KindConnectionRefused:
		return "connection refused"
	case KindDisconnected:
		return "disconnected"
	case KindReadTimeout:
		return "read timeout"
	case KindProtocol:
		return "protocol error"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindInvalidArgument:
		return "invalid argument"
	case KindRemote:
		return "remote error"
	case KindPollTimeout:
		return "poll timeout"
	case KindMalformedResponse:
		return "malformed response"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Error is the error type returned by every package of the client.
type Error struct {
	Kind Kind
	// Op is the command or phase that failed, e.g. "auth1" or "dial".
	Op string
	// Code is the daemon error_num for KindRemote errors. Zero otherwise.
	Code int
	// Message is a human readable description, if any.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Code != 0 {
		fmt.Fprintf(&b, " %d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches target when it is an *Error of the same Kind and, if target
// carries a non-zero Code, the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == 0 || t.Code == e.Code
}

// Sentinel values for errors.Is. They carry only a Kind (and a Code for the
// remote ones) and are never returned directly.
var (
	ErrConnectTimeout       = &Error{Kind: KindConnectTimeout}
	ErrConnectionRefused    = &Error{Kind: KindConnectionRefused}
	ErrDisconnected         = &Error{Kind: KindDisconnected}
	ErrReadTimeout          = &Error{Kind: KindReadTimeout}
	ErrProtocol             = &Error{Kind: KindProtocol}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument}
	ErrRemote               = &Error{Kind: KindRemote}
	ErrPollTimeout          = &Error{Kind: KindPollTimeout}
	ErrMalformedResponse    = &Error{Kind: KindMalformedResponse}

	ErrAlreadyAttached         = &Error{Kind: KindRemote, Code: CodeAlreadyAttached}
	ErrUserNotFound            = &Error{Kind: KindRemote, Code: CodeNotFound}
	ErrInvalidURL              = &Error{Kind: KindRemote, Code: CodeInvalidURL}
	ErrNoNetwork               = &Error{Kind: KindRemote, Code: CodeNoNetwork}
	ErrBadEmail                = &Error{Kind: KindRemote, Code: CodeBadEmail}
	ErrIncorrectPassword       = &Error{Kind: KindRemote, Code: CodeBadPassword}
	ErrEmailInUse              = &Error{Kind: KindRemote, Code: CodeNonUniqueEmail}
	ErrAccountCreationDisabled = &Error{Kind: KindRemote, Code: CodeAccountCreationDisabled}
)

// New returns an *Error with a message and no cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf is New with a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error with an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Remote returns a KindRemote error for a daemon error code. When message is
// empty the message registered for code is used.
func Remote(op string, code int, message string) *Error {
	if message == "" {
		message = Message(code)
	}
	return &Error{Kind: KindRemote, Op: op, Code: code, Message: message}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the daemon error code carried by err, or 0.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
