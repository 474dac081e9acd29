// Package faults defines the error kinds shared across the outreach engine.
// Components return wrapped sentinels; the session maps each kind to its
// recovery or termination policy in one place.
package faults

import "errors"

var (
	// ErrTransientUI covers an element that never became present or
	// clickable within its timeout. Recovered by falling back to the
	// alternate channel, never by retrying the same channel.
	ErrTransientUI = errors.New("transient ui fault")

	// ErrMalformedIdentity covers a result card whose profile link has no
	// parseable trailing identifier. The row is skipped; the run continues.
	ErrMalformedIdentity = errors.New("malformed candidate identity")

	// ErrChannelUnavailable means neither channel yielded a usable address.
	ErrChannelUnavailable = errors.New("no delivery channel available")

	// ErrOutboundLimit is the directory's daily/outbound cap signal. The
	// session stops immediately after persisting committed outcomes.
	ErrOutboundLimit = errors.New("outbound limit reached")

	// ErrPersistence means a durable write failed. Never swallowed: it
	// threatens the dedup invariant.
	ErrPersistence = errors.New("persistence fault")

	// ErrFatalControl means a mandatory control (e.g. the modal close
	// button) could not be operated. Terminates the session.
	ErrFatalControl = errors.New("fatal control fault")

	// ErrCorruptRecords marks a record store file that could not be
	// decoded. Load fails closed with an empty store; the caller must
	// surface this as a warning.
	ErrCorruptRecords = errors.New("corrupt record store")
)

// IsFatal reports whether err must terminate the session. Fatal faults still
// pass through the finalize-and-flush sequence before the process exits.
func IsFatal(err error) bool {
	return errors.Is(err, ErrOutboundLimit) ||
		errors.Is(err, ErrFatalControl) ||
		errors.Is(err, ErrPersistence)
}
