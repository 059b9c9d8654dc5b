package cli

import (
	"errors"
	"fmt"

	"github.com/avivsinai/mailcorpus/internal/snapshot"
)

// Exit codes for CLI commands.
// These provide semantic meaning for scripting and automation.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitError indicates a general error occurred.
	ExitError = 1

	// ExitUsage indicates invalid arguments or flags were provided.
	ExitUsage = 2

	// ExitNotFound indicates a requested resource was not found
	// (corpus root, snapshot, user, thread).
	ExitNotFound = 3

	// ExitPersistence indicates the snapshot could not be written. The
	// previous snapshot, if any, is still in place.
	ExitPersistence = 5
)

// ExitCodeError wraps an error with a specific exit code.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess (0) if err is nil.
// Returns the wrapped code if err wraps an *ExitCodeError.
// Returns ExitPersistence for snapshot persistence failures.
// Returns ExitError (1) for all other errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, snapshot.ErrPersistence) {
		return ExitPersistence
	}
	return ExitError
}

// UsageError creates an error with ExitUsage code.
func UsageError(format string, args ...any) error {
	return &ExitCodeError{
		Code: ExitUsage,
		Err:  fmt.Errorf(format, args...),
	}
}

// NotFoundError creates an error with ExitNotFound code.
func NotFoundError(format string, args ...any) error {
	return &ExitCodeError{
		Code: ExitNotFound,
		Err:  fmt.Errorf(format, args...),
	}
}
