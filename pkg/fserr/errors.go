// Package fserr defines the error vocabulary shared by the quota store, the virtual
// filesystem engine and the protocol adapters.
//
// Every domain failure is an *Error carrying an ErrorCode. Adapters translate codes
// into their own status space (HTTP status codes for the API adapter) and callers
// test for a category with errors.Is against the exported sentinels:
//
//	if errors.Is(err, fserr.ErrQuotaExceeded) { ... }
package fserr

import (
	"errors"
	"fmt"
)

// ErrorCode represents the category of a homefs error.
type ErrorCode int

const (
	// CodeNotAuthenticated indicates no valid session was presented
	CodeNotAuthenticated ErrorCode = iota + 1

	// CodeAlreadyAuthenticated indicates the caller already holds a session
	CodeAlreadyAuthenticated

	// CodeInvalidCredentials indicates a password mismatch
	CodeInvalidCredentials

	// CodeUnknownUser indicates the referenced account does not exist
	CodeUnknownUser

	// CodeReservedName indicates an attempt to register the administrative id
	CodeReservedName

	// CodeDuplicateAccount indicates the account id is already taken
	CodeDuplicateAccount

	// CodeAdminForbidden indicates the operation is not allowed for the caller's role:
	// file operations as admin, account management as a regular user
	CodeAdminForbidden

	// CodeAccessDenied indicates a path scope or ownership violation
	CodeAccessDenied

	// CodeNotFound indicates the logical file does not exist
	CodeNotFound

	// CodeQuotaExceeded indicates the reservation would exceed the account limit
	CodeQuotaExceeded

	// CodeLimitBelowUsage indicates a new limit lower than the current usage
	CodeLimitBelowUsage

	// CodePhysicalIO wraps failures of the physical storage backend
	CodePhysicalIO

	// CodePhysicalMissing indicates a logical entry whose physical object is gone
	CodePhysicalMissing

	// CodeAlreadyExists indicates a create on a path that is already indexed
	CodeAlreadyExists

	// CodeInvalidArgument indicates malformed input (bad path, negative size, ...)
	CodeInvalidArgument

	// CodePermissionDenied indicates a capability that is never granted (execute)
	CodePermissionDenied
)

var codeNames = map[ErrorCode]string{
	CodeNotAuthenticated:     "NotAuthenticated",
	CodeAlreadyAuthenticated: "AlreadyAuthenticated",
	CodeInvalidCredentials:   "InvalidCredentials",
	CodeUnknownUser:          "UnknownUser",
	CodeReservedName:         "ReservedName",
	CodeDuplicateAccount:     "DuplicateAccount",
	CodeAdminForbidden:       "AdminForbidden",
	CodeAccessDenied:         "AccessDenied",
	CodeNotFound:             "NotFound",
	CodeQuotaExceeded:        "QuotaExceeded",
	CodeLimitBelowUsage:      "LimitBelowUsage",
	CodePhysicalIO:           "PhysicalIOError",
	CodePhysicalMissing:      "PhysicalMissing",
	CodeAlreadyExists:        "AlreadyExists",
	CodeInvalidArgument:      "InvalidArgument",
	CodePermissionDenied:     "PermissionDenied",
}

// String returns the stable name of the code, used in API responses and metrics labels.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Error is a domain error returned by homefs operations.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the logical path or account id the error refers to (if applicable)
	Path string

	// Err is the underlying cause, typically a storage error
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Path != "" {
		msg = msg + ": " + e.Path
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so the sentinels below work with
// errors.Is regardless of message, path or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotAuthenticated     = &Error{Code: CodeNotAuthenticated, Message: "not authenticated"}
	ErrAlreadyAuthenticated = &Error{Code: CodeAlreadyAuthenticated, Message: "already authenticated"}
	ErrInvalidCredentials   = &Error{Code: CodeInvalidCredentials, Message: "invalid credentials"}
	ErrUnknownUser          = &Error{Code: CodeUnknownUser, Message: "unknown user"}
	ErrReservedName         = &Error{Code: CodeReservedName, Message: "reserved account name"}
	ErrDuplicateAccount     = &Error{Code: CodeDuplicateAccount, Message: "account already exists"}
	ErrAdminForbidden       = &Error{Code: CodeAdminForbidden, Message: "operation not permitted for this role"}
	ErrAccessDenied         = &Error{Code: CodeAccessDenied, Message: "access denied"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "file not found"}
	ErrQuotaExceeded        = &Error{Code: CodeQuotaExceeded, Message: "quota exceeded"}
	ErrLimitBelowUsage      = &Error{Code: CodeLimitBelowUsage, Message: "limit below current usage"}
	ErrPhysicalIO           = &Error{Code: CodePhysicalIO, Message: "physical storage error"}
	ErrPhysicalMissing      = &Error{Code: CodePhysicalMissing, Message: "physical file missing"}
	ErrAlreadyExists        = &Error{Code: CodeAlreadyExists, Message: "file already exists"}
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrPermissionDenied     = &Error{Code: CodePermissionDenied, Message: "permission denied"}
)

// New creates an *Error with the given code, message and path.
func New(code ErrorCode, message, path string) *Error {
	return &Error{Code: code, Message: message, Path: path}
}

// Wrap creates an *Error with the given code around an underlying cause.
func Wrap(code ErrorCode, err error, message, path string) *Error {
	return &Error{Code: code, Message: message, Path: path, Err: err}
}

// CodeOf extracts the ErrorCode of err, or 0 when err is not a homefs error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
