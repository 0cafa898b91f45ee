// Package ftlerr carries the sentinel errors the FTL core raises.
// OutOfRange is never fatal; EmptyGCVictim is a normal dispatcher
// signal; AllocationExhausted is the one kind that aborts the run.
// Debug-only assertion failures are not an error value at all — see
// package invariant.
package ftlerr

import "errors"

var (
	// ErrOutOfRange marks an LBA/LPN range beyond the device. Never fatal.
	ErrOutOfRange = errors.New("ftl: out of range")

	// ErrAllocationExhausted marks a write pointer that could not
	// obtain a free line even after one forced GC retry. Fatal: the
	// caller must abort the run with no partial progress.
	ErrAllocationExhausted = errors.New("ftl: allocation exhausted")

	// ErrEmptyGCVictim means a GC class had no eligible victim. Not an
	// error condition by itself; the dispatcher tries the other class.
	ErrEmptyGCVictim = errors.New("ftl: no gc victim available")
)
