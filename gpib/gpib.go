package gpib

import "context"

// WaitEvent is a bitmask of bus conditions a Transport can block on.
type WaitEvent uint16

// Wait events. The values follow the IEEE 488.2 board status bits used by
// linux-gpib, so board-backed transports can pass the mask through
// unchanged.
const (
	// WaitRQS waits for the addressed device to request service.
	WaitRQS WaitEvent = 1 << 11
	// WaitTimeout terminates the wait when the transport's configured
	// timeout elapses.
	WaitTimeout WaitEvent = 1 << 14
)

// Transport is the link-layer surface required by the instrument session.
//
// Implementations own exactly one physical channel to one device. They do
// not need to serialize concurrent calls; the session guarantees at most
// one in-flight exchange.
type Transport interface {
	// Connect brings up the underlying link. It must be safe to call on a
	// fresh transport exactly once before any other method.
	Connect(ctx context.Context) error

	// Disconnect tears down the link. It must be safe to call multiple
	// times and on a never-connected transport.
	Disconnect(ctx context.Context) error

	// Write sends raw bytes to the device.
	Write(ctx context.Context, p []byte) error

	// Read returns one reply from the device, including any line
	// terminator the device sent.
	Read(ctx context.Context) ([]byte, error)

	// Clear issues a bus-level selected device clear, resetting the
	// device's input buffer and parser.
	Clear(ctx context.Context) error

	// Local returns the device to local (front panel) control, releasing
	// any lockout.
	Local(ctx context.Context) error

	// SerialPoll reads the device's serial-poll status byte. Reading has
	// the side effect of clearing the device's request-service condition.
	SerialPoll(ctx context.Context) (uint8, error)

	// Wait blocks until one of the requested events occurs. Transports
	// that cannot wait for the given mask should return ErrWaitTimeout
	// after their configured timeout; the session treats the timeout as a
	// benign polling hint, not a failure.
	Wait(ctx context.Context, events WaitEvent) error
}

// EOTSetter is implemented by transports that assert an end-of-transmission
// character on reads, such as LAN-to-GPIB adapters. The session disables
// the assertion at connect time so framing relies purely on the configured
// line terminator.
type EOTSetter interface {
	SetEOT(ctx context.Context, enabled bool) error
}
