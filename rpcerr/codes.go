package rpcerr

import "fmt"

// Daemon error codes seen in error_num elements.
const (
	CodeAlreadyAttached         = -130
	CodeNotFound                = -136
	CodeInvalidURL              = -189
	CodeNoNetwork               = -203
	CodeInProgress              = -204
	CodeBadEmail                = -205
	CodeBadPassword             = -206
	CodeNonUniqueEmail          = -207
	CodeAccountCreationDisabled = -208
)

var codeMessages = map[int]string{
	CodeAlreadyAttached:         "already attached to project",
	CodeNotFound:                "user not found",
	CodeInvalidURL:              "invalid URL",
	CodeNoNetwork:               "no network connection",
	CodeInProgress:              "operation in progress",
	CodeBadEmail:                "bad email address",
	CodeBadPassword:             "incorrect password",
	CodeNonUniqueEmail:          "email address already in use",
	CodeAccountCreationDisabled: "account creation disabled",
}

// Message returns the description registered for code, or a generic one.
func Message(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown error code %d", code)
}

// Known reports whether code has a registered meaning.
func Known(code int) bool {
	_, ok := codeMessages[code]
	return ok
}
