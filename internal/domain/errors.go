package domain

import "errors"

// Common domain errors.
var (
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded signals the controlled quota-stop condition.
	// It is an outcome, not a failure: in-flight items finish and the
	// run reports quota-stopped.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrBackendUnavailable signals the external accelerator tool is
	// missing or not runnable. Treated as a transient transport error.
	ErrBackendUnavailable = errors.New("download backend unavailable")

	// ErrProgressUnavailable signals the progress store cannot persist.
	// Fatal for the run: continuing without durable checkpointing risks
	// duplicate or lost work.
	ErrProgressUnavailable = errors.New("progress store unavailable")
)

// TransientError wraps a transport failure worth retrying: timeouts,
// connection resets, accelerator unavailability, 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "transient transport error"
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable transport error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried under the
// transport retry budget.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, ErrBackendUnavailable)
}

// ValidationError wraps an integrity rejection. Retried under the
// smaller validation retry budget.
type ValidationError struct {
	Role   AssetRole
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return "validation failed: " + string(e.Result.Reason) + " (" + string(e.Role) + ")"
}

// IsValidation reports whether err is an integrity rejection, and
// returns the rejection detail when it is.
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// FilesystemError wraps a local storage failure (cannot create
// directory, cannot write or move a file). Fatal for the item with no
// retry; recurring across consecutive items it escalates to a fatal
// run-level error.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// FSError wraps err as a filesystem failure.
func FSError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &FilesystemError{Op: op, Path: path, Err: err}
}

// IsFilesystem reports whether err is a local storage failure.
func IsFilesystem(err error) bool {
	var fe *FilesystemError
	return errors.As(err, &fe)
}
