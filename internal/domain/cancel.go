package domain

import "sync/atomic"

// CancelFlag is a single-writer, multiple-reader cancellation signal.
// Cancellation is cooperative, not preemptive: setting the flag only
// requests that the transfer stop; the transfer loop must poll IsSet
// (once per chunk) to actually abort, so a transfer that never checks
// may run to completion after the flag is set.
type CancelFlag struct {
	v atomic.Bool
}

// Set marks the flag. Meaningful at most once; later calls are no-ops.
func (f *CancelFlag) Set() { f.v.Store(true) }

// IsSet reports whether cancellation has been requested.
func (f *CancelFlag) IsSet() bool { return f.v.Load() }
