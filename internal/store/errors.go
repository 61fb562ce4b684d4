package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes storage failures.
type ErrorCode string

const (
	// CodeStorageUnavailable means the database cannot be opened or upgraded.
	CodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// CodeWriteFailed means a put, delete, clear or replace transaction failed.
	CodeWriteFailed ErrorCode = "WRITE_FAILED"

	// CodeReadFailed means a query failed or returned an undecodable document.
	CodeReadFailed ErrorCode = "READ_FAILED"

	// CodeUnknownCollection means the collection or index is not in the catalog.
	CodeUnknownCollection ErrorCode = "UNKNOWN_COLLECTION"
)

// ErrMissingKey is wrapped when a record lacks a usable key field.
var ErrMissingKey = errors.New("record key missing or not a non-empty UTF-8 string")

// Error is returned by every Store operation that fails.
type Error struct {
	Code       ErrorCode
	Op         string
	Collection string
	Key        string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Op)
	if e.Collection != "" {
		msg += " " + e.Collection
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsStorageUnavailable reports whether err is a STORAGE_UNAVAILABLE failure.
func IsStorageUnavailable(err error) bool {
	return CodeOf(err) == CodeStorageUnavailable
}

// IsWriteFailed reports whether err is a WRITE_FAILED failure.
func IsWriteFailed(err error) bool {
	return CodeOf(err) == CodeWriteFailed
}

// IsReadFailed reports whether err is a READ_FAILED failure.
func IsReadFailed(err error) bool {
	return CodeOf(err) == CodeReadFailed
}

// IsUnknownCollection reports whether err names a collection or index outside the catalog.
func IsUnknownCollection(err error) bool {
	return CodeOf(err) == CodeUnknownCollection
}

func unavailable(op string, err error) *Error {
	return &Error{Code: CodeStorageUnavailable, Op: op, Err: err}
}
