// Package gpib defines the transport contract the fluke5440b session
// drives. A Transport abstracts a GPIB board driver or a network/serial
// GPIB adapter behind byte-oriented write/read, bus-level device clear,
// serial poll and service-request wait primitives.
//
// The package only specifies behavior; concrete implementations live
// elsewhere (see the prologix package for a Prologix GPIB-LAN/VCP
// adapter).
package gpib
