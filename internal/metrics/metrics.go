// Package metrics provides optional observability for dispatcher
// operations and the upload/download pipelines (SPEC_FULL.md §10). The
// shape follows marmos91-dittofs/pkg/metrics: a plain interface callers
// hold as a nilable field, with package-level helper functions that
// no-op on a nil receiver so every call site stays branch-free.
package metrics

import "time"

// Recorder is the observability surface every DCFS component accepts.
// Passing nil disables collection with zero overhead - no allocation,
// no locking, not even a nil check at most call sites since the helper
// functions below absorb it.
type Recorder interface {
	// RecordOp records a completed dispatcher operation: its name
	// ("mkdir", "lookup", "read", ...), the resolved directory (empty
	// at root), how long it took, and an error kind string ("" on
	// success).
	RecordOp(op, dir string, duration time.Duration, errKind string)

	// RecordBytes records bytes moved through a read or write handle.
	RecordBytes(op, direction string, n uint64)

	// RecordTransfer records one upload or download pipeline run.
	RecordTransfer(direction string, parts int, bytes int64, duration time.Duration, success bool)

	// SetMountedChannels reports the current number of listable
	// directories in the primed namespace.
	SetMountedChannels(n int)
}

// RecordOp calls r.RecordOp if r is non-nil.
func RecordOp(r Recorder, op, dir string, duration time.Duration, errKind string) {
	if r != nil {
		r.RecordOp(op, dir, duration, errKind)
	}
}

// RecordBytes calls r.RecordBytes if r is non-nil.
func RecordBytes(r Recorder, op, direction string, n uint64) {
	if r != nil {
		r.RecordBytes(op, direction, n)
	}
}

// RecordTransfer calls r.RecordTransfer if r is non-nil.
func RecordTransfer(r Recorder, direction string, parts int, bytes int64, duration time.Duration, success bool) {
	if r != nil {
		r.RecordTransfer(direction, parts, bytes, duration, success)
	}
}

// SetMountedChannels calls r.SetMountedChannels if r is non-nil.
func SetMountedChannels(r Recorder, n int) {
	if r != nil {
		r.SetMountedChannels(n)
	}
}

// ErrKind reduces an error to the short label RecordOp expects: "" on
// success, otherwise the error's own string. Callers that already
// classify into a small error-kind enum should pass that enum's name
// instead of calling this.
func ErrKind(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
