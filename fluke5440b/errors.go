package fluke5440b

import (
	"errors"
	"fmt"
)

// Sentinel errors raised locally, before any bus transaction.
var (
	// ErrNotConnected indicates a session operation was invoked before
	// Connect, or after Disconnect.
	ErrNotConnected = errors.New("fluke5440b: not connected, call Connect first")

	// ErrCommandTooLong indicates a command exceeding the instrument's
	// 127 byte input buffer.
	ErrCommandTooLong = errors.New("fluke5440b: command exceeds the instrument's 127 byte input buffer")

	// ErrValueOutOfRange indicates a numeric argument outside the range
	// the instrument accepts.
	ErrValueOutOfRange = errors.New("fluke5440b: value out of range")

	// ErrInvalidLimit indicates an output limit pair where both bounds
	// have the same sign, or a limit the instrument rejected.
	ErrInvalidLimit = errors.New("fluke5440b: invalid output limit")

	// ErrInvalidBaudRate indicates an RS-232 baud rate outside the fixed
	// set the instrument supports.
	ErrInvalidBaudRate = errors.New("fluke5440b: invalid baud rate")

	// ErrSenseModeNotAllowed indicates the instrument rejected the
	// requested sense mode in its current configuration.
	ErrSenseModeNotAllowed = errors.New("fluke5440b: sense mode not allowed")

	// ErrGuardModeNotAllowed indicates the instrument rejected the
	// requested guard mode in its current configuration.
	ErrGuardModeNotAllowed = errors.New("fluke5440b: guard mode not allowed")

	// ErrUnexpectedReply indicates a reply that violates the protocol
	// contract, such as a non-numeric field where an integer was
	// expected or an enumeration value outside the known set. It is
	// fatal and never retried.
	ErrUnexpectedReply = errors.New("fluke5440b: unexpected reply from instrument")
)

// DeviceError is an operational error reported by the instrument,
// carrying the decoded general error code.
type DeviceError struct {
	// Code is the decoded general error code.
	Code ErrorCode
	// Command is the command that triggered the error, if known.
	Command string
	// Message is a reply the instrument attached before flagging the
	// error, if any.
	Message string
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("fluke5440b: device error: %s (code %d)", e.Code, int(e.Code))
	if e.Command != "" {
		msg += fmt.Sprintf(", command %q", e.Command)
	}
	if e.Message != "" {
		msg += fmt.Sprintf(", message returned: %q", e.Message)
	}
	return msg
}

// SelftestError is a fault reported by the instrument during one of the
// three self-test sequences, carrying the decoded self-test fault code.
type SelftestError struct {
	// Test names the failing self-test: "digital", "analog" or
	// "high voltage".
	Test string
	// Code is the decoded self-test fault code.
	Code SelfTestErrorCode
}

func (e *SelftestError) Error() string {
	return fmt.Sprintf("fluke5440b: %s self-test failed: %s (code %d)", e.Test, e.Code, int(e.Code))
}
