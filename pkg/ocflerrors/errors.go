package ocflerrors

import (
	stderrors "errors"

	"emperror.dev/emperror"
	"emperror.dev/errors"
)

// Sentinel errors for the repository error taxonomy. Callers classify with
// errors.Is; errors built by the constructors below wrap one of these
// sentinels, other errors of the module wrap none.
var (
	ErrNotFound        = errors.New("not found")
	ErrObjectOutOfSync = errors.New("object out of sync")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidPath     = errors.New("invalid path")
	ErrFixityMismatch  = errors.New("fixity mismatch")
	ErrCorruptObject   = errors.New("corrupt object")
	ErrLockTimeout     = errors.New("lock timeout")
	ErrStorageIO       = errors.New("storage io")
)

func NotFound(format string, a ...any) error {
	return errors.WrapIff(ErrNotFound, format, a...)
}

func OutOfSync(format string, a ...any) error {
	return errors.WrapIff(ErrObjectOutOfSync, format, a...)
}

func AlreadyExists(format string, a ...any) error {
	return errors.WrapIff(ErrAlreadyExists, format, a...)
}

func InvalidPath(format string, a ...any) error {
	return errors.WrapIff(ErrInvalidPath, format, a...)
}

func FixityMismatch(format string, a ...any) error {
	return errors.WrapIff(ErrFixityMismatch, format, a...)
}

func CorruptObject(format string, a ...any) error {
	return errors.WrapIff(ErrCorruptObject, format, a...)
}

func LockTimeout(format string, a ...any) error {
	return errors.WrapIff(ErrLockTimeout, format, a...)
}

// StorageIO wraps an underlying I/O error so that the cause chain is
// preserved while the error still classifies as ErrStorageIO.
func StorageIO(cause error, format string, a ...any) error {
	if cause == nil {
		return errors.WrapIff(ErrStorageIO, format, a...)
	}
	return errors.WrapIff(&ioError{cause: cause}, format, a...)
}

type ioError struct {
	cause error
}

func (e *ioError) Error() string {
	return ErrStorageIO.Error() + ": " + e.cause.Error()
}

func (e *ioError) Unwrap() []error {
	return []error{ErrStorageIO, e.cause}
}

// Is classifies an error against one of the taxonomy sentinels.
func Is(err, sentinel error) bool {
	return stderrors.Is(err, sentinel)
}

func GetErrorStacktrace(err error) errors.StackTrace {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	var stack errors.StackTrace

	errors.UnwrapEach(err, func(err error) bool {
		e := emperror.ExposeStackTrace(err)
		st, ok := e.(stackTracer)
		if !ok {
			return true
		}
		stack = st.StackTrace()
		return true
	})
	return stack
}
