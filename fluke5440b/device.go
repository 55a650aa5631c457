package fluke5440b

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"

	"github.com/calbench/fluke5440b/gpib"
	"github.com/calbench/fluke5440b/internal/pool"
	"github.com/calbench/fluke5440b/logger"
)

// maxCommandLen is the size of the instrument's input buffer. Longer
// commands are rejected before touching the transport.
const maxCommandLen = 127

// StateChangeHandler is invoked with every device state the session
// observes while driving a long-running operation. Handlers run on the
// polling goroutine; keep them short.
type StateChangeHandler func(state DeviceState)

// Device is an instrument session for a Fluke 5440B voltage calibrator.
//
// A Device owns its Transport exclusively for its lifetime. It is inert
// until Connect is called; every operation that performs a multi-step
// protocol exchange fails with ErrNotConnected before then.
//
// All methods are safe for concurrent use. Multi-step exchanges are
// serialized by an internal session lock so concurrent callers cannot
// interleave command and status bytes on the single physical channel.
type Device struct {
	transport gpib.Transport
	cfg       *config
	logger    logger.Logger

	// mu is the session lock. It guards every exchange that issues more
	// than one bus transaction or depends on a state transition initiated
	// by a prior write.
	mu        sync.Mutex
	connected atomic.Bool

	handlerID     atomic.Uint64
	stateHandlers *xsync.MapOf[uint64, StateChangeHandler]
}

// New creates a Device driving the given transport. The transport must be
// connected via the Device's Connect method, not directly.
func New(transport gpib.Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, errors.New("fluke5440b: transport is nil")
	}

	cfg := &config{
		pollInterval: 500 * time.Millisecond,
		settleDelay:  200 * time.Millisecond,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, fmt.Errorf("fluke5440b: invalid option: %w", err)
		}
	}

	return &Device{
		transport:     transport,
		cfg:           cfg,
		logger:        cfg.logger,
		stateHandlers: xsync.NewMapOf[uint64, StateChangeHandler](),
	}, nil
}

// SetLogLevel changes the session's log verbosity at runtime.
func (d *Device) SetLogLevel(level logger.Level) {
	d.logger.SetLevel(level)
}

// OnStateChange registers a handler invoked with every device state the
// session observes while polling a long-running operation. It returns an
// id for RemoveStateChange.
func (d *Device) OnStateChange(h StateChangeHandler) uint64 {
	id := d.handlerID.Add(1)
	d.stateHandlers.Store(id, h)
	return id
}

// RemoveStateChange unregisters a handler registered with OnStateChange.
func (d *Device) RemoveStateChange(id uint64) {
	d.stateHandlers.Delete(id)
}

func (d *Device) notifyState(state DeviceState) {
	d.stateHandlers.Range(func(_ uint64, h StateChangeHandler) bool {
		h(state)
		return true
	})
}

// Connect brings up the transport and normalizes the instrument for this
// session: it drains any stale message or error state left by previous
// users, waits for a running job to finish, forces the line terminator to
// LF with EOI and the reply separator to comma, and disables all SRQ
// interrupts.
//
// Connection failures of the underlying transport are surfaced unchanged;
// there are no retries.
func (d *Device) Connect(ctx context.Context) error {
	if err := d.transport.Connect(ctx); err != nil {
		return err
	}

	if eot, ok := d.transport.(gpib.EOTSetter); ok {
		// LAN-to-GPIB adapters append an end-of-transmission character on
		// reads; framing must rely purely on the line terminator.
		if err := eot.SetEOT(ctx, false); err != nil {
			return err
		}
	}

	d.connected.Store(true)

	d.mu.Lock()
	defer d.mu.Unlock()

	status, err := d.SerialPoll(ctx) // clears a stale SRQ bit
	if err != nil {
		return err
	}
	for status&SerialPollMsgReady != 0 { // drain the message buffer
		msg, err := d.Read(ctx)
		if err != nil {
			return err
		}
		d.logger.Debug("calibrator message at boot", "message", strings.Join(msg, ","))
		if status, err = d.SerialPoll(ctx); err != nil {
			return err
		}
	}

	if status&SerialPollError != 0 {
		// Clear error flags not produced by us.
		raw, err := d.GetError(ctx)
		if err != nil {
			return err
		}
		d.logger.Debug("calibrator error at boot", "error", describeRawError(raw))
	}

	state, err := d.GetState(ctx)
	if err != nil {
		return err
	}
	d.logger.Debug("calibrator state at boot", "state", state)
	if !state.IsIdle() {
		if err := d.SetSRQMask(ctx, SrqStateChange); err != nil {
			return err
		}
		if err := d.waitForIdle(ctx); err != nil {
			return err
		}
	}

	if err := d.setTerminator(ctx, TerminatorLFEOI); err != nil {
		return err
	}
	if err := d.setSeparator(ctx, SeparatorComma); err != nil {
		return err
	}

	return d.SetSRQMask(ctx, SrqNone) // disable interrupts
}

// Disconnect best-effort returns the instrument to local control, then
// unconditionally tears down the transport. It is safe to call multiple
// times and on a never-connected session.
func (d *Device) Disconnect(ctx context.Context) error {
	d.connected.Store(false)

	var errs error
	if err := d.transport.Local(ctx); err != nil && !errors.Is(err, gpib.ErrNotConnected) {
		errs = multierr.Append(errs, err)
	}

	return multierr.Append(errs, d.transport.Disconnect(ctx))
}

// Local returns the instrument to local (front panel) control if it is in
// local lockout.
func (d *Device) Local(ctx context.Context) error {
	return d.transport.Local(ctx)
}

// Reset places the instrument in standby, enables voltage mode, sets the
// output to 0.0 and disables the divider, external guard and external
// sense. It is issued as a bus device clear, which also circumvents the
// input buffer, then re-applies the session's terminator, separator and
// SRQ settings once the instrument is idle again.
func (d *Device) Reset(ctx context.Context) error {
	if !d.connected.Load() {
		return ErrNotConnected
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transport.Clear(ctx); err != nil {
		return err
	}

	// The instrument resets all settings and does not accept commands
	// until done, so SRQ interrupts cannot be used here. Poll the status
	// register first, then the device itself.
	if err := d.waitForStateChange(ctx); err != nil {
		return err
	}
	for {
		state, err := d.GetState(ctx)
		if err != nil {
			return err
		}
		if state.IsIdle() {
			break
		}
		if err := d.sleep(ctx, d.cfg.pollInterval); err != nil {
			return err
		}
	}

	if err := d.setTerminator(ctx, TerminatorLFEOI); err != nil {
		return err
	}
	if err := d.setSeparator(ctx, SeparatorComma); err != nil {
		return err
	}

	return d.SetSRQMask(ctx, SrqNone)
}

// GetID returns the instrument identification in the shape of a SCPI
// *IDN? reply: manufacturer, model, serial (always "0") and the firmware
// version string.
func (d *Device) GetID(ctx context.Context) (manufacturer, model, serial, version string, err error) {
	version, err = d.GetSoftwareVersion(ctx)
	if err != nil {
		return "", "", "", "", err
	}
	return "Fluke", "5440B", "0", strings.TrimSpace(version), nil
}

// Write encodes the command and sends it to the instrument. Commands
// longer than the instrument's 127 byte input buffer fail with
// ErrCommandTooLong before any bus I/O.
//
// If checkError is set, Write waits for the instrument to parse the
// command, serial polls it and, on an error condition, drains any pending
// reply, queries the error code and returns it as a *DeviceError.
func (d *Device) Write(ctx context.Context, cmd string, checkError bool) error {
	if len(cmd) > maxCommandLen {
		return fmt.Errorf("%w: %d bytes", ErrCommandTooLong, len(cmd))
	}

	if err := d.transport.Write(ctx, []byte(cmd)); err != nil {
		return err
	}
	if !checkError {
		return nil
	}

	// The instrument is slow in parsing commands; polling earlier reads a
	// stale status byte.
	if err := d.sleep(ctx, d.cfg.settleDelay); err != nil {
		return err
	}
	spoll, err := d.SerialPoll(ctx)
	if err != nil {
		return err
	}
	if spoll&SerialPollError == 0 {
		return nil
	}

	d.logger.Debug("error while writing command", "command", cmd, "spoll", spoll)

	// Some commands attach a reply before flagging the error; it must be
	// read before querying the error code.
	var msg string
	if spoll&SerialPollMsgReady != 0 {
		fields, err := d.Read(ctx)
		if err != nil {
			return err
		}
		msg = strings.Join(fields, ",")
	}

	raw, err := d.GetError(ctx)
	if err != nil {
		return err
	}

	return &DeviceError{Code: ErrorCode(raw), Command: cmd, Message: msg}
}

// Read reads one reply line, strips the line terminator and splits it on
// the comma separator configured at connect time. Single-value replies
// yield a one-element slice.
func (d *Device) Read(ctx context.Context) ([]string, error) {
	raw, err := d.transport.Read(ctx)
	if err != nil {
		return nil, err
	}

	return strings.Split(strings.TrimRight(string(raw), "\r\n"), ","), nil
}

// Query writes the command and immediately reads back the reply. It is a
// combined call to Write and Read.
func (d *Device) Query(ctx context.Context, cmd string, checkError bool) ([]string, error) {
	if err := d.Write(ctx, cmd, checkError); err != nil {
		return nil, err
	}
	return d.Read(ctx)
}

// SerialPoll reads the serial-poll status register. Reading clears the
// hardware request-service bit.
func (d *Device) SerialPoll(ctx context.Context) (SerialPollFlags, error) {
	status, err := d.transport.SerialPoll(ctx)
	if err != nil {
		return 0, err
	}
	return SerialPollFlags(status), nil
}

// GetError queries the last error reported by the instrument and returns
// the raw integer code. The code space is ambiguous: depending on the
// last command it is either a general ErrorCode or a SelfTestErrorCode.
//
// The query itself is deliberately not error-checked, since error
// checking is implemented in terms of GetError.
func (d *Device) GetError(ctx context.Context) (int, error) {
	return d.queryInt(ctx, "GERR", false)
}

// GetState queries the instrument's current operating state. A value
// outside the documented state set is a protocol violation and fails with
// ErrUnexpectedReply.
func (d *Device) GetState(ctx context.Context) (DeviceState, error) {
	raw, err := d.queryInt(ctx, "GDNG", true)
	if err != nil {
		return 0, err
	}

	state := DeviceState(raw)
	if !state.IsValid() {
		return 0, fmt.Errorf("%w: unknown device state %d", ErrUnexpectedReply, raw)
	}
	return state, nil
}

// waitForStateChange serial polls until the state-changing bit clears.
// Used after commands that trigger a brief internal reconfiguration
// without SRQ support, such as changing the terminator or separator.
func (d *Device) waitForStateChange(ctx context.Context) error {
	for {
		spoll, err := d.SerialPoll(ctx)
		if err != nil {
			return err
		}
		if spoll&SerialPollStateChange == 0 {
			return nil
		}
		if err := d.sleep(ctx, d.cfg.pollInterval); err != nil {
			return err
		}
	}
}

// waitForRQS blocks until the instrument requests service or the
// transport's wait timeout elapses, then serial polls to clear the SRQ
// bit. A timeout is treated as a polling hint, not a failure.
//
// If the poll shows an error condition and raiseError is set, the error
// is decoded and returned as a *DeviceError — except a GPIB handshake
// error, which chatty polling adapters produce spuriously and which is
// only logged.
func (d *Device) waitForRQS(ctx context.Context, raiseError bool) (SerialPollFlags, error) {
	if err := d.transport.Wait(ctx, gpib.WaitRQS|gpib.WaitTimeout); err != nil {
		if !errors.Is(err, gpib.ErrWaitTimeout) {
			return 0, err
		}
		d.logger.Warn("timeout while waiting for a service request; check the transport's SRQ auto-poll and timeout configuration")
	}

	spoll, err := d.SerialPoll(ctx) // clear the SRQ bit
	if err != nil {
		return 0, err
	}

	if spoll&SerialPollError != 0 && raiseError {
		d.logger.Debug("error while waiting for service request", "spoll", spoll)
		raw, err := d.GetError(ctx)
		if err != nil {
			return 0, err
		}
		code := ErrorCode(raw)
		if code == ErrCodeGPIBHandshake {
			d.logger.Info("GPIB handshake error while waiting; harmless with adapters that poll during wait")
		} else {
			return spoll, &DeviceError{Code: code}
		}
	}

	return spoll, nil
}

// waitForIdle repeatedly queries the device state and blocks on service
// requests until the instrument reports idle. The SRQ mask must have the
// state-change bit enabled before calling.
func (d *Device) waitForIdle(ctx context.Context) error {
	state, err := d.GetState(ctx)
	if err != nil {
		return err
	}
	for !state.IsIdle() {
		d.logger.Info("calibrator busy", "state", state)
		d.notifyState(state)
		if _, err := d.waitForRQS(ctx, true); err != nil {
			return err
		}
		if state, err = d.GetState(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SetSRQMask sets the service request mask register. Every bit set
// asserts the SRQ line when the matching condition occurs.
func (d *Device) SetSRQMask(ctx context.Context, mask SrqMask) error {
	return d.Write(ctx, "SSRQ "+strconv.Itoa(int(mask)), true)
}

// GetSRQMask returns the current service request mask register.
func (d *Device) GetSRQMask(ctx context.Context) (SrqMask, error) {
	raw, err := d.queryInt(ctx, "GSRQ", true)
	if err != nil {
		return 0, err
	}
	return SrqMask(raw), nil
}

// queryString queries a command expected to return exactly one field.
func (d *Device) queryString(ctx context.Context, cmd string, checkError bool) (string, error) {
	fields, err := d.Query(ctx, cmd, checkError)
	if err != nil {
		return "", err
	}
	if len(fields) != 1 {
		return "", fmt.Errorf("%w: expected a single value for %s, received %d fields", ErrUnexpectedReply, cmd, len(fields))
	}
	return fields[0], nil
}

// queryInt queries a command expected to return a single integer.
func (d *Device) queryInt(ctx context.Context, cmd string, checkError bool) (int, error) {
	field, err := d.queryString(ctx, cmd, checkError)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 0, fmt.Errorf("%w: expected an integer for %s, received %q", ErrUnexpectedReply, cmd, field)
	}
	return value, nil
}

// queryFloat queries a command expected to return a single decimal value.
func (d *Device) queryFloat(ctx context.Context, cmd string, checkError bool) (float64, error) {
	field, err := d.queryString(ctx, cmd, checkError)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: expected a decimal value for %s, received %q", ErrUnexpectedReply, cmd, field)
	}
	return value, nil
}

// sleep pauses for the given duration, honoring context cancellation.
func (d *Device) sleep(ctx context.Context, dur time.Duration) error {
	t := pool.GetTimer(dur)
	defer pool.PutTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// describeRawError renders a raw GERR code for logging. The general and
// self-test code spaces overlap on the wire; try the general space first
// and fall back to the self-test space.
func describeRawError(raw int) string {
	if code := ErrorCode(raw); code.IsValid() {
		return code.String()
	}
	return SelfTestErrorCode(raw).String()
}
