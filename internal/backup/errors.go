package backup

import (
	"errors"
	"fmt"
)

// CodeInvalidFormat is the error code for a document that cannot be read as a backup.
const CodeInvalidFormat = "INVALID_BACKUP_FORMAT"

// FormatError reports input that is not a backup document: malformed JSON,
// a top level that is not an object, or a known key holding the wrong type.
type FormatError struct {
	// Field is the offending key, e.g. "patients" or "patients[3]". Empty
	// when the document as a whole is unreadable.
	Field string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", CodeInvalidFormat, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", CodeInvalidFormat, e.Field, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsInvalidFormat reports whether err is a FormatError.
func IsInvalidFormat(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func invalid(field string, err error) *FormatError {
	return &FormatError{Field: field, Err: err}
}
