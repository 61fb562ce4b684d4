package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/clinic/internal/backup"
	"github.com/roach88/clinic/internal/clinic"
	"github.com/roach88/clinic/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (storage error, invalid backup, rejected record)
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, unknown collection)
)

// Error codes reported alongside store and backup codes.
const (
	ErrCodeGeneric         = "ERROR"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeConfig          = "CONFIG_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands. Diagnostics
// go to the session logger on stderr, never through the formatter.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`    // "WRITE_FAILED", "INVALID_BACKUP_FORMAT", etc.
	Message string `json:"message"` // human-readable message
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err))
	return WrapExitError(exit, message, err)
}

// classify maps an error to its response code and exit code.
func classify(err error) (string, int) {
	if code := store.CodeOf(err); code != "" {
		if code == store.CodeUnknownCollection {
			return string(code), ExitCommandError
		}
		return string(code), ExitFailure
	}
	if backup.IsInvalidFormat(err) {
		return backup.CodeInvalidFormat, ExitFailure
	}
	switch {
	case errors.Is(err, clinic.ErrNameRequired),
		errors.Is(err, clinic.ErrInvalidDate),
		errors.Is(err, clinic.ErrInvalidTime),
		errors.Is(err, clinic.ErrKeyRequired):
		return ErrCodeInvalidArgument, ExitCommandError
	}
	return ErrCodeGeneric, ExitFailure
}
