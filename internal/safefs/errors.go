package safefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/sydlexius/mediarr/internal/throttle"
)

// Error wraps a filesystem failure with its operation, path, and
// throttle classification.
type Error struct {
	Op   string
	Path string
	Kind throttle.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a safefs error classified as transient,
// meaning retries were exhausted but the condition may clear later.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == throttle.Transient
}

// IsPermanent reports whether err is a safefs error classified as permanent.
func IsPermanent(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == throttle.Permanent
}

// Classify maps a raw filesystem error to a throttle classification.
// Would-block, busy, and stale-handle errno values are transient; missing
// paths and permission problems are permanent. Anything unrecognized is
// treated as transient so it still gets a bounded retry budget.
func Classify(err error) throttle.ErrorKind {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return throttle.Permanent
	}

	for _, errno := range []syscall.Errno{
		syscall.ENOENT, syscall.EACCES, syscall.EPERM, syscall.ENOTDIR,
	} {
		if errors.Is(err, errno) {
			return throttle.Permanent
		}
	}

	return throttle.Transient
}

// underlying unwraps PathError layers so callers see the root cause.
func underlying(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}
