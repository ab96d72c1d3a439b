package ledger

import (
	"errors"
	"maps"
)

// Code is a machine-readable ledger error kind.
type Code string

// Error codes.
const (
	CodeInvalidID         Code = "INVALID_ID"
	CodeNotRegistered     Code = "NOT_REGISTERED"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeDuplicateRole     Code = "DUPLICATE_ROLE"
	CodeInvalidRole       Code = "INVALID_ROLE"
	CodeEmptyField        Code = "EMPTY_FIELD"
	CodeInvalidExpiry     Code = "INVALID_EXPIRY"
	CodeExpired           Code = "EXPIRED"
	CodeRevoked           Code = "REVOKED"
	CodeAlreadyRevoked    Code = "ALREADY_REVOKED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInvalidTarget     Code = "INVALID_TARGET"
	CodeSameOwner         Code = "SAME_OWNER"
	CodeInvalidQuantity   Code = "INVALID_QUANTITY"
)

// Error is a rejected ledger command. Metadata carries the context of the
// rejection, e.g. the caller's role and the roles that were allowed.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is a ledger error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidID         = &Error{Code: CodeInvalidID, Message: "invalid id"}
	ErrNotRegistered     = &Error{Code: CodeNotRegistered, Message: "not registered"}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrDuplicateRole     = &Error{Code: CodeDuplicateRole, Message: "role already exists"}
	ErrInvalidRole       = &Error{Code: CodeInvalidRole, Message: "invalid role"}
	ErrEmptyField        = &Error{Code: CodeEmptyField, Message: "empty field"}
	ErrInvalidExpiry     = &Error{Code: CodeInvalidExpiry, Message: "invalid expiry"}
	ErrExpired           = &Error{Code: CodeExpired, Message: "prescription expired"}
	ErrRevoked           = &Error{Code: CodeRevoked, Message: "prescription revoked"}
	ErrAlreadyRevoked    = &Error{Code: CodeAlreadyRevoked, Message: "prescription already revoked"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "invalid transition"}
	ErrInvalidTarget     = &Error{Code: CodeInvalidTarget, Message: "invalid target"}
	ErrSameOwner         = &Error{Code: CodeSameOwner, Message: "same owner"}
	ErrInvalidQuantity   = &Error{Code: CodeInvalidQuantity, Message: "invalid quantity"}
)

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func withMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// CodeOf returns the ledger code of err, or "" if err is not a ledger error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MetadataOf returns a copy of the metadata attached to a ledger error.
func MetadataOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) && e.Metadata != nil {
		return maps.Clone(e.Metadata)
	}
	return nil
}
