package fluke5440b

import "strings"

// SerialPollFlags is the status byte returned by a serial poll. Reading it
// clears the hardware request-service condition; the other bits are sticky
// until their cause is cleared by reading the pending message or error.
type SerialPollFlags uint8

// Serial-poll status bits.
const (
	SerialPollStateChange   SerialPollFlags = 1 << 2
	SerialPollMsgReady      SerialPollFlags = 1 << 3
	SerialPollOutputSettled SerialPollFlags = 1 << 4
	SerialPollError         SerialPollFlags = 1 << 5
	SerialPollSRQ           SerialPollFlags = 1 << 6
)

func (f SerialPollFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	if f&SerialPollStateChange != 0 {
		names = append(names, "state-change")
	}
	if f&SerialPollMsgReady != 0 {
		names = append(names, "message-ready")
	}
	if f&SerialPollOutputSettled != 0 {
		names = append(names, "output-settled")
	}
	if f&SerialPollError != 0 {
		names = append(names, "error")
	}
	if f&SerialPollSRQ != 0 {
		names = append(names, "srq")
	}
	return strings.Join(names, "|")
}

// SrqMask controls which status conditions assert a hardware service
// request. The session enables the state-change bit around long operations
// and always restores the mask to SrqNone afterwards.
type SrqMask uint8

// SRQ mask bits.
const (
	SrqNone          SrqMask = 0
	SrqStateChange   SrqMask = 1 << 2
	SrqMsgReady      SrqMask = 1 << 3
	SrqOutputSettled SrqMask = 1 << 4
	SrqError         SrqMask = 1 << 5
)

func (m SrqMask) String() string {
	if m == SrqNone {
		return "none"
	}
	var names []string
	if m&SrqStateChange != 0 {
		names = append(names, "state-change")
	}
	if m&SrqMsgReady != 0 {
		names = append(names, "message-ready")
	}
	if m&SrqOutputSettled != 0 {
		names = append(names, "output-settled")
	}
	if m&SrqError != 0 {
		names = append(names, "error")
	}
	return strings.Join(names, "|")
}

// StatusFlags is the persistent configuration register returned by the
// GSTS query. It is a read-only snapshot; the driver never caches it.
type StatusFlags uint8

// Status register bits.
const (
	StatusVoltageMode    StatusFlags = 1 << 0
	StatusCurrentBoost   StatusFlags = 1 << 1
	StatusVoltageBoost   StatusFlags = 1 << 2
	StatusDividerEnabled StatusFlags = 1 << 3
	StatusInternalSense  StatusFlags = 1 << 4
	StatusOutputEnabled  StatusFlags = 1 << 5
	StatusInternalGuard  StatusFlags = 1 << 6
	StatusRearOutput     StatusFlags = 1 << 7
)

func (f StatusFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	if f&StatusVoltageMode != 0 {
		names = append(names, "voltage-mode")
	}
	if f&StatusCurrentBoost != 0 {
		names = append(names, "current-boost")
	}
	if f&StatusVoltageBoost != 0 {
		names = append(names, "voltage-boost")
	}
	if f&StatusDividerEnabled != 0 {
		names = append(names, "divider")
	}
	if f&StatusInternalSense != 0 {
		names = append(names, "internal-sense")
	}
	if f&StatusOutputEnabled != 0 {
		names = append(names, "output-enabled")
	}
	if f&StatusInternalGuard != 0 {
		names = append(names, "internal-guard")
	}
	if f&StatusRearOutput != 0 {
		names = append(names, "rear-output")
	}
	return strings.Join(names, "|")
}
