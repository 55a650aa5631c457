package fluke5440b

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// baudRates is the fixed set of RS-232 baud rates the instrument
// supports; the wire value of SBDR/GBDR is an index into this table.
var baudRates = []float64{50, 75, 110, 134.5, 150, 200, 300, 600, 1200, 1800, 2400, 4800, 9600}

// limitNumeric formats a value for the instrument: fixed 8-decimal form,
// truncated to 9 characters (decimal point plus 8 significant digits)
// when the magnitude is 1 or above. See page 4-5 of the operator manual.
func limitNumeric(value float64) string {
	result := strconv.FormatFloat(value, 'f', 8, 64)
	if math.Abs(value) >= 1 && len(result) > 9 {
		result = result[:9]
	}
	return result
}

// GetTerminator returns the line terminator the instrument appends to its
// replies.
func (d *Device) GetTerminator(ctx context.Context) (TerminatorType, error) {
	if !d.connected.Load() {
		return 0, ErrNotConnected
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := d.queryInt(ctx, "GTRM", true)
	if err != nil {
		return 0, err
	}

	term := TerminatorType(raw)
	if !term.IsValid() {
		return 0, fmt.Errorf("%w: unknown terminator %d", ErrUnexpectedReply, raw)
	}
	return term, nil
}

// setTerminator sets the line terminator used by the instrument. The
// session lock must be held: the command triggers a brief internal
// reconfiguration that is waited out by polling.
func (d *Device) setTerminator(ctx context.Context, value TerminatorType) error {
	if err := d.Write(ctx, "STRM "+strconv.Itoa(int(value)), true); err != nil {
		return err
	}
	return d.waitForStateChange(ctx)
}

// GetSeparator returns the separator the instrument uses between multiple
// reply values.
func (d *Device) GetSeparator(ctx context.Context) (SeparatorType, error) {
	raw, err := d.queryInt(ctx, "GSEP", true)
	if err != nil {
		return 0, err
	}

	sep := SeparatorType(raw)
	if !sep.IsValid() {
		return 0, fmt.Errorf("%w: unknown separator %d", ErrUnexpectedReply, raw)
	}
	return sep, nil
}

// setSeparator sets the reply separator. The session lock must be held,
// see setTerminator.
func (d *Device) setSeparator(ctx context.Context, value SeparatorType) error {
	if err := d.Write(ctx, "SSEP "+strconv.Itoa(int(value)), true); err != nil {
		return err
	}
	return d.waitForStateChange(ctx)
}

// SetMode selects normal output or one of the boost modes driving an
// external Fluke 5205A power amplifier or 5220A transconductance
// amplifier.
func (d *Device) SetMode(ctx context.Context, mode ModeType) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: mode %q", ErrValueOutOfRange, string(mode))
	}
	return d.Write(ctx, string(mode), true)
}

// SetOutputEnabled sets the output to operate (true) or standby (false).
func (d *Device) SetOutputEnabled(ctx context.Context, enabled bool) error {
	if enabled {
		return d.Write(ctx, "OPER", true)
	}
	return d.Write(ctx, "STBY", true)
}

// GetOutput returns the output voltage currently set.
func (d *Device) GetOutput(ctx context.Context) (float64, error) {
	return d.queryFloat(ctx, "GOUT", true)
}

// SetOutput sets the output of the calibrator. Setting an output greater
// than ±22 V automatically places the instrument in standby for safety;
// call SetOutputEnabled(true) to re-enable the output.
//
// Values beyond ±1500 V fail with ErrValueOutOfRange before any bus I/O;
// a device-side rejection of the value maps to the same error.
func (d *Device) SetOutput(ctx context.Context, value float64) error {
	if value < -1500 || value > 1500 {
		return fmt.Errorf("%w: output %s V", ErrValueOutOfRange, limitNumeric(value))
	}

	err := d.Write(ctx, "SOUT "+limitNumeric(value), true)
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == ErrCodeOutputOutsideLimits {
		return fmt.Errorf("%w: output %s V rejected by instrument", ErrValueOutOfRange, limitNumeric(value))
	}
	return err
}

// SetInternalSense selects 2-wire (internal sense, true) or 4-wire
// (external sense, false) operation. Use internal sense when the load
// resistance is above 1 MΩ; otherwise cable resistance reduces accuracy.
func (d *Device) SetInternalSense(ctx context.Context, enabled bool) error {
	cmd := "ESNS"
	if enabled {
		cmd = "ISNS"
	}

	err := d.Write(ctx, cmd, true)
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == ErrCodeInvalidSenseMode {
		return ErrSenseModeNotAllowed
	}
	return err
}

// SetInternalGuard connects the guard to the output LO terminal (true)
// for devices with floating inputs, or exposes it externally (false) for
// devices with grounded inputs.
func (d *Device) SetInternalGuard(ctx context.Context, enabled bool) error {
	cmd := "EGRD"
	if enabled {
		cmd = "IGRD"
	}

	err := d.Write(ctx, cmd, true)
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == ErrCodeInvalidGuardMode {
		return ErrGuardModeNotAllowed
	}
	return err
}

// SetDivider enables the internal 1:10 / 1:100 divider, reducing output
// noise and increasing resolution in the -2.2 V to 2.2 V range. The
// divider has a 450 Ω output impedance; loads below 1 GΩ introduce a
// loading error.
func (d *Device) SetDivider(ctx context.Context, enabled bool) error {
	if enabled {
		return d.Write(ctx, "DIVY", true)
	}
	return d.Write(ctx, "DIVN", true)
}

// GetVoltageLimit returns the negative and positive voltage limit set on
// the instrument. The instrument reports an error when in current boost
// mode.
func (d *Device) GetVoltageLimit(ctx context.Context) (negative, positive float64, err error) {
	fields, err := d.Query(ctx, "GVLM", true)
	if err != nil {
		return 0, 0, err
	}
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: expected two voltage limits, received %d fields", ErrUnexpectedReply, len(fields))
	}

	// The instrument reports the positive limit first.
	positive, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: voltage limit %q", ErrUnexpectedReply, fields[0])
	}
	negative, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: voltage limit %q", ErrUnexpectedReply, fields[1])
	}
	return negative, positive, nil
}

// SetVoltageLimit sets a single voltage limit; its sign selects whether
// the positive or negative limit is updated.
func (d *Device) SetVoltageLimit(ctx context.Context, limit float64) error {
	if limit < -1500 || limit > 1500 {
		return fmt.Errorf("%w: voltage limit %s V", ErrValueOutOfRange, limitNumeric(limit))
	}
	return d.writeLimit(ctx, "SVLM", limit)
}

// SetVoltageLimits sets both voltage limits. One value must be positive
// and the other negative or zero.
func (d *Device) SetVoltageLimits(ctx context.Context, limit1, limit2 float64) error {
	if limit1 < -1500 || limit1 > 1500 || limit2 < -1500 || limit2 > 1500 {
		return fmt.Errorf("%w: voltage limits (%s, %s) V", ErrValueOutOfRange, limitNumeric(limit1), limitNumeric(limit2))
	}
	if limit1*limit2 > 0 {
		return fmt.Errorf("%w: one limit must be positive and one negative or zero", ErrInvalidLimit)
	}

	if err := d.writeLimit(ctx, "SVLM", limit2); err != nil {
		return err
	}
	return d.writeLimit(ctx, "SVLM", limit1)
}

// GetCurrentLimit returns the current limits set on the instrument. The
// result holds one element when the instrument reports a single limit,
// or two elements (negative, positive) otherwise. The instrument reports
// an error when in voltage boost mode.
func (d *Device) GetCurrentLimit(ctx context.Context) ([]float64, error) {
	fields, err := d.Query(ctx, "GCLM", true)
	if err != nil {
		return nil, err
	}

	limits := make([]float64, 0, len(fields))
	for _, field := range fields {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: current limit %q", ErrUnexpectedReply, field)
		}
		limits = append(limits, value)
	}
	if len(limits) == 2 {
		// Positive first on the wire, negative first for the caller.
		limits[0], limits[1] = limits[1], limits[0]
	}
	return limits, nil
}

// SetCurrentLimit sets a single current limit; its sign selects whether
// the positive or negative limit is updated.
func (d *Device) SetCurrentLimit(ctx context.Context, limit float64) error {
	if limit < -20 || limit > 20 {
		return fmt.Errorf("%w: current limit %s A", ErrValueOutOfRange, limitNumeric(limit))
	}
	return d.writeLimit(ctx, "SCLM", limit)
}

// SetCurrentLimits sets both current limits. One value must be positive
// and the other negative or zero.
func (d *Device) SetCurrentLimits(ctx context.Context, limit1, limit2 float64) error {
	if limit1 < -20 || limit1 > 20 || limit2 < -20 || limit2 > 20 {
		return fmt.Errorf("%w: current limits (%s, %s) A", ErrValueOutOfRange, limitNumeric(limit1), limitNumeric(limit2))
	}
	if limit1*limit2 > 0 {
		return fmt.Errorf("%w: one limit must be positive and one negative or zero", ErrInvalidLimit)
	}

	if err := d.writeLimit(ctx, "SCLM", limit2); err != nil {
		return err
	}
	return d.writeLimit(ctx, "SCLM", limit1)
}

// writeLimit writes a single SVLM/SCLM command, mapping a device-side
// limit rejection to ErrInvalidLimit.
func (d *Device) writeLimit(ctx context.Context, cmd string, limit float64) error {
	err := d.Write(ctx, cmd+" "+limitNumeric(limit), true)
	var devErr *DeviceError
	if errors.As(err, &devErr) && devErr.Code == ErrCodeLimitOutOfRange {
		return fmt.Errorf("%w: %s rejected by instrument", ErrInvalidLimit, limitNumeric(limit))
	}
	return err
}

// GetSoftwareVersion returns the instrument's firmware version string,
// formatted as dd.dd.
func (d *Device) GetSoftwareVersion(ctx context.Context) (string, error) {
	return d.queryString(ctx, "GVRS", true)
}

// GetStatus returns the instrument's configuration register: output
// mode, boost modes, divider, sense, guard and rear output settings. The
// snapshot is fetched on demand and never cached.
func (d *Device) GetStatus(ctx context.Context) (StatusFlags, error) {
	raw, err := d.queryInt(ctx, "GSTS", true)
	if err != nil {
		return 0, err
	}
	return StatusFlags(raw), nil
}

// GetRS232BaudRate returns the baud rate of the RS-232 printer port in
// bit/s.
func (d *Device) GetRS232BaudRate(ctx context.Context) (float64, error) {
	index, err := d.queryInt(ctx, "GBDR", true)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(baudRates) {
		return 0, fmt.Errorf("%w: baud rate index %d", ErrUnexpectedReply, index)
	}
	return baudRates[index], nil
}

// SetRS232Enabled enables or disables the RS-232 printer port.
func (d *Device) SetRS232Enabled(ctx context.Context, enabled bool) error {
	if enabled {
		return d.Write(ctx, "MONY", true)
	}
	return d.Write(ctx, "MONN", true)
}
