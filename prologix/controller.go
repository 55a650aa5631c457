package prologix

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/query"
	"go.uber.org/multierr"

	"github.com/calbench/fluke5440b/gpib"
	"github.com/calbench/fluke5440b/internal/pool"
	"github.com/calbench/fluke5440b/logger"
)

// Controller drives a Prologix controller-in-charge addressing a single
// GPIB device. It implements gpib.Transport and gpib.EOTSetter.
//
// Controllers do not serialize concurrent calls beyond keeping single
// reads and writes atomic; the instrument session guarantees at most one
// in-flight exchange.
type Controller struct {
	pad             int
	dial            func(ctx context.Context) (io.ReadWriteCloser, error)
	waitTimeout     time.Duration
	srqPollInterval time.Duration
	logger          logger.Logger

	mu sync.Mutex
	rw io.ReadWriteCloser
	r  *bufio.Reader
}

var (
	_ gpib.Transport = (*Controller)(nil)
	_ gpib.EOTSetter = (*Controller)(nil)
)

// Option applies an option to the controller.
type Option func(*Controller)

// WithWaitTimeout sets how long Wait polls the SRQ line before giving up
// with gpib.ErrWaitTimeout. Long-running instrument operations can pause
// for minutes between service requests; the default is 120 seconds.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(c *Controller) { c.waitTimeout = timeout }
}

// WithSRQPollInterval sets the interval between "++srq" polls during
// Wait. The default is 1 second; polling faster loads the GPIB bus with
// serial polls the instrument has to answer.
func WithSRQPollInterval(interval time.Duration) Option {
	return func(c *Controller) { c.srqPollInterval = interval }
}

// WithLogger sets the logger for the controller. The default is the
// package-level logger instance.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func newController(pad int, dial func(ctx context.Context) (io.ReadWriteCloser, error), opts ...Option) (*Controller, error) {
	if pad < 0 || pad > 30 {
		return nil, fmt.Errorf("prologix: invalid primary address %d (must be 0-30)", pad)
	}

	c := &Controller{
		pad:             pad,
		dial:            dial,
		waitTimeout:     120 * time.Second,
		srqPollInterval: time.Second,
		logger:          logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Connect brings up the underlying link and configures the controller:
// controller-in-charge mode, the device address, read-after-write
// disabled, EOI assertion on the last byte and LF as the GPIB
// termination.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rw != nil {
		return nil
	}

	rw, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.rw = rw
	c.r = bufio.NewReader(rw)

	cmds := []string{
		"savecfg 0", // do not wear out the adapter's EPROM
		fmt.Sprintf("addr %d", c.pad),
		"mode 1",          // controller-in-charge
		"auto 0",          // no read-after-write; reads are explicit
		"eoi 1",           // assert EOI with the last byte
		"eos 2",           // append LF to instrument commands
		"read_tmo_ms 500", // per-read timeout inside the adapter
		"eot_char 10",
		"eot_enable 1",
	}
	for _, cmd := range cmds {
		if err := c.command(cmd); err != nil {
			errClose := c.closeLocked()
			return multierr.Append(err, errClose)
		}
	}

	return nil
}

// Disconnect tears down the underlying link. It is safe to call multiple
// times and on a never-connected controller.
func (c *Controller) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Controller) closeLocked() error {
	if c.rw == nil {
		return nil
	}

	var errs error
	if flusher, ok := c.rw.(interface{ ResetInputBuffer() error }); ok {
		errs = multierr.Append(errs, flusher.ResetInputBuffer())
	}
	errs = multierr.Append(errs, c.rw.Close())
	c.rw = nil
	c.r = nil

	return errs
}

// Write sends raw bytes to the addressed device.
func (c *Controller) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rw == nil {
		return gpib.ErrNotConnected
	}
	_, err := fmt.Fprintf(c.rw, "%s\n", strings.TrimRight(string(p), "\r\n"))
	return err
}

// Read fetches one reply from the addressed device. Read-after-write is
// disabled, so the controller is told explicitly to read until EOI.
func (c *Controller) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readLocked()
}

func (c *Controller) readLocked() ([]byte, error) {
	if c.rw == nil {
		return nil, gpib.ErrNotConnected
	}
	if _, err := fmt.Fprint(c.rw, "++read eoi\n"); err != nil {
		return nil, err
	}

	line, err := c.r.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		return line, nil
	}
	return line, err
}

// Clear sends a Selected Device Clear to the addressed device.
func (c *Controller) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.command("clr")
}

// Local returns the addressed device to local (front panel) control.
func (c *Controller) Local(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.command("loc")
}

// SerialPoll reads the serial-poll status byte of the addressed device.
func (c *Controller) SerialPoll(ctx context.Context) (uint8, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	status, err := query.Int(ctlQueryer{c}, "spoll")
	if err != nil {
		return 0, err
	}
	if status < 0 || status > 255 {
		return 0, fmt.Errorf("prologix: serial poll status %d out of range", status)
	}
	return uint8(status), nil
}

// SetEOT enables or disables the controller appending its EOT character
// to data read from the device when EOI is detected.
func (c *Controller) SetEOT(ctx context.Context, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if enabled {
		return c.command("eot_enable 1")
	}
	return c.command("eot_enable 0")
}

// Wait blocks until the device asserts the SRQ line or the configured
// wait timeout elapses. The adapter has no host-side interrupt, so the
// SRQ line is polled via the controller.
func (c *Controller) Wait(ctx context.Context, events gpib.WaitEvent) error {
	if events&gpib.WaitRQS == 0 {
		return fmt.Errorf("prologix: unsupported wait mask %#x", uint16(events))
	}

	deadline := time.Now().Add(c.waitTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.mu.Lock()
		asserted, err := query.Bool(ctlQueryer{c}, "srq")
		c.mu.Unlock()
		if err != nil {
			return err
		}
		if asserted {
			return nil
		}
		if time.Now().After(deadline) {
			return gpib.ErrWaitTimeout
		}

		t := pool.GetTimer(c.srqPollInterval)
		select {
		case <-ctx.Done():
			pool.PutTimer(t)
			return ctx.Err()
		case <-t.C:
			pool.PutTimer(t)
		}
	}
}

// command sends a "++" command to the controller itself, not to the
// device on the bus.
func (c *Controller) command(cmd string) error {
	if c.rw == nil {
		return gpib.ErrNotConnected
	}
	c.logger.Debug("controller command", "command", cmd)
	_, err := fmt.Fprintf(c.rw, "++%s\n", strings.TrimSpace(cmd))
	return err
}

// ctlQueryer adapts controller-level queries to the query.Queryer
// interface so replies can be decoded with the gotmc/query helpers. The
// caller must hold the controller lock.
type ctlQueryer struct {
	c *Controller
}

func (q ctlQueryer) Query(cmd string) (string, error) {
	if err := q.c.command(cmd); err != nil {
		return "", err
	}

	line, err := q.c.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}
