// Package prologix implements the gpib.Transport contract for Prologix
// GPIB-ETHERNET and GPIB-USB controllers and compatible adapters.
//
// The controller is driven with its "++" command set over either a TCP
// connection (GPIB-ETHERNET, see NewLAN) or a virtual COM port
// (GPIB-USB, see NewVCP). Device traffic is written verbatim; replies
// are fetched with an explicit "++read eoi" since read-after-write is
// disabled.
//
// Prologix adapters have no hardware service-request interrupt towards
// the host, so Wait is implemented by polling the controller's "++srq"
// query until the SRQ line is asserted or the configured wait timeout
// elapses.
package prologix
