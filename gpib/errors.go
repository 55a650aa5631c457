package gpib

import "errors"

var (
	// ErrWaitTimeout is returned by Transport.Wait when the configured
	// timeout elapses before any requested event occurs.
	ErrWaitTimeout = errors.New("gpib: wait timeout")

	// ErrNotConnected is returned by transports when an operation is
	// attempted before Connect or after Disconnect.
	ErrNotConnected = errors.New("gpib: transport not connected")
)
