package prologix

import (
	"context"
	"io"

	"go.bug.st/serial"
)

// NewVCP creates a controller for a Prologix GPIB-USB adapter on the
// given virtual COM port, e.g. "/dev/ttyUSB0" or "COM3". pad is the
// primary GPIB address of the instrument on the bus.
//
// The adapter enumerates as a USB CDC device, so the configured baud
// rate is not meaningful; 115200 is used by convention. The port is
// opened by Connect, not here.
func NewVCP(port string, pad int, opts ...Option) (*Controller, error) {
	dial := func(_ context.Context) (io.ReadWriteCloser, error) {
		p, err := serial.Open(port, &serial.Mode{BaudRate: 115200})
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	return newController(pad, dial, opts...)
}
