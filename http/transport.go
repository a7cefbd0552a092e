package http

import (
	"context"
	"errors"
)

// ErrSetup is returned by Query when the per-call resources (transport
// handle, trace buffer) cannot be acquired.
var ErrSetup = errors.New("cannot initialize query")

// Transport opens handles for individual transfers.
type Transport interface {
	Open() (Handle, error)
}

// Handle performs a single transfer. A handle is used for exactly one
// Perform call and must be closed afterwards.
type Handle interface {
	// SetOptions configures the transfer.
	SetOptions(opts Options) error

	// Perform runs the transfer and returns the raw received bytes: every
	// header block (when OptHeader is set) followed by the final body.
	// Header lines are also reported through OptHeaderFunction as they
	// arrive. A non-nil error describes a transport failure; the bytes
	// received up to that point are still returned.
	Perform(ctx context.Context) ([]byte, error)

	// Info reports metadata about the last transfer.
	Info() Info

	// Close releases the handle.
	Close() error
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func() (Handle, error)

// Open calls f.
func (f TransportFunc) Open() (Handle, error) {
	return f()
}
