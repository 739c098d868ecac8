package dcfsfs

import (
	"errors"
	"syscall"

	"bazil.org/fuse"

	"a4.io/dcfs/internal/namespace"
	"a4.io/dcfs/internal/upload"
)

// Kind classifies a dispatcher-level failure the way spec.md §7's
// abstract error kinds do, each mapped to exactly one syscall.Errno so
// no call site open-codes an errno directly.
type Kind int

const (
	KindOK Kind = iota
	KindNoEntry
	KindNotPermitted
	KindNotSupported
	KindNotImplemented
	KindTryAgain
	KindTooLarge
	KindNoBuffers
	KindInvalid
	KindIO
)

// Errno returns the syscall.Errno the bazil.org/fuse layer should reply
// with for k (spec.md §7 "User-visible failures").
func (k Kind) Errno() syscall.Errno {
	switch k {
	case KindNoEntry:
		return syscall.ENOENT
	case KindNotPermitted:
		return syscall.EPERM
	case KindNotSupported:
		return syscall.ENOTSUP
	case KindNotImplemented:
		return syscall.ENOSYS
	case KindTryAgain:
		return syscall.EAGAIN
	case KindTooLarge:
		return syscall.EFBIG
	case KindNoBuffers:
		return syscall.ENOBUFS
	case KindInvalid:
		return syscall.EINVAL
	case KindIO:
		return syscall.EIO
	default:
		return 0
	}
}

// toFuseErr classifies err into a Kind and returns the fuse.Error the
// dispatcher should hand back, logging nothing itself - callers log with
// whatever path/operation context they have.
func toFuseErr(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, namespace.ErrInvalidPath):
		return fuse.Errno(KindNotPermitted.Errno())
	case errors.Is(err, upload.ErrTooLarge):
		return fuse.Errno(KindTooLarge.Errno())
	case errors.Is(err, upload.ErrBatchFailed):
		return fuse.Errno(KindTryAgain.Errno())
	default:
		return fuse.Errno(KindTryAgain.Errno())
	}
}

// These are the fuse errors the dispatcher returns directly without going
// through toFuseErr; errNoEntry and errNotPermitted are its shape-validation
// errors (spec.md §4.4 Path Resolver contract).
var (
	errNoEntry        = fuse.Errno(syscall.ENOENT)
	errNotPermitted   = fuse.Errno(syscall.EPERM)
	errNotSupported   = fuse.Errno(syscall.ENOTSUP)
	errNotImplemented = fuse.Errno(syscall.ENOSYS)
	errInvalid        = fuse.Errno(syscall.EINVAL)
	errTryAgain       = fuse.Errno(syscall.EAGAIN)
	errTooLarge       = fuse.Errno(syscall.EFBIG)
	errIO             = fuse.Errno(syscall.EIO)
	errNoBuffers      = fuse.Errno(syscall.ENOBUFS)
)
