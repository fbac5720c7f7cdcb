package model

import "errors"

// ErrorCode categorizes ledger failures independent of any transport or
// peer-level error wrapping. Values double as stable strings in chaincode
// responses, so clients can match on them.
type ErrorCode string

const (
	CodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"  // BootstrapLedger called on a bootstrapped ledger
	CodeNotBootstrapped    ErrorCode = "NOT_BOOTSTRAPPED"     // Operation requires genesis configuration that does not exist yet
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"         // Caller is neither the subject owner nor permitted by policy
	CodeSubjectNotFound    ErrorCode = "SUBJECT_NOT_FOUND"    // Referenced subject does not exist
	CodeCredentialNotFound ErrorCode = "CREDENTIAL_NOT_FOUND" // Referenced credential does not exist
	CodeAlreadyRevoked     ErrorCode = "ALREADY_REVOKED"      // Credential is already in its terminal revoked state
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"        // Argument validation failure
)

// Error carries an ErrorCode through fmt.Errorf("%w") chains so callers and
// tests can match failures by kind rather than by message text.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code, letting errors.Is treat any two errors with the
// same ErrorCode as equal regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates an error with the given code and message.
func NewError(code ErrorCode, msg string) error {
	return &Error{Code: code, Message: msg}
}

// WrapError wraps err with a code and message. If err already carries an
// ErrorCode, that original code is preserved.
func WrapError(err error, code ErrorCode, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether err (anywhere in its chain) carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
