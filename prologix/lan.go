package prologix

import (
	"context"
	"io"
	"net"
)

// NewLAN creates a controller for a Prologix GPIB-ETHERNET adapter
// listening at the given address, e.g. "192.168.1.42:1234". pad is the
// primary GPIB address of the instrument on the bus.
//
// The TCP connection is established by Connect, not here.
func NewLAN(address string, pad int, opts ...Option) (*Controller, error) {
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			// Controller commands are short; do not batch them.
			_ = tcpConn.SetNoDelay(true)
		}
		return conn, nil
	}

	return newController(pad, dial, opts...)
}
