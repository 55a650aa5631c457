package fluke5440b

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CalibrationConstants is a snapshot of the gain and offset constants the
// instrument derived during its last internal calibration, queried via
// GCAL. It is never cached: auto-calibration changes the constants behind
// the driver's back.
type CalibrationConstants struct {
	Gain02V   float64
	Gain2V    float64
	Gain10V   float64
	Gain20V   float64
	Gain250V  float64
	Gain1000V float64

	Offset10VPos   float64
	Offset20VPos   float64
	Offset250VPos  float64
	Offset1000VPos float64
	Offset10VNeg   float64
	Offset20VNeg   float64
	Offset250VNeg  float64
	Offset1000VNeg float64

	// Gain shifts with respect to the previous internal calibration, in
	// µV/V.
	GainShift10V   float64
	GainShift20V   float64
	GainShift250V  float64
	GainShift1000V float64

	ResolutionRatio float64
	ADCGain         float64
}

// String pretty-prints the calibration constants.
func (c CalibrationConstants) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Gain 0.2 V       : %.8f mV\n", c.Gain02V*1e3)
	fmt.Fprintf(&b, "Gain 2 V         : %.8f mV\n", c.Gain2V*1e3)
	fmt.Fprintf(&b, "Gain 10 V        : %.8f mV\n", c.Gain10V*1e3)
	fmt.Fprintf(&b, "Gain 20 V        : %.8f mV\n", c.Gain20V*1e3)
	fmt.Fprintf(&b, "Gain 250 V       : %.8f mV\n", c.Gain250V*1e3)
	fmt.Fprintf(&b, "Gain 1000 V      : %.8f mV\n", c.Gain1000V*1e3)
	fmt.Fprintf(&b, "Offset +10 V     : %.8f mV\n", c.Offset10VPos*1e3)
	fmt.Fprintf(&b, "Offset +20 V     : %.8f mV\n", c.Offset20VPos*1e3)
	fmt.Fprintf(&b, "Offset +250 V    : %.8f mV\n", c.Offset250VPos*1e3)
	fmt.Fprintf(&b, "Offset +1000 V   : %.8f mV\n", c.Offset1000VPos*1e3)
	fmt.Fprintf(&b, "Offset -10 V     : %.8f mV\n", c.Offset10VNeg*1e3)
	fmt.Fprintf(&b, "Offset -20 V     : %.8f mV\n", c.Offset20VNeg*1e3)
	fmt.Fprintf(&b, "Offset -250 V    : %.8f mV\n", c.Offset250VNeg*1e3)
	fmt.Fprintf(&b, "Offset -1000 V   : %.8f mV\n", c.Offset1000VNeg*1e3)
	fmt.Fprintf(&b, "Gain shift 10 V  : %g µV/V\n", c.GainShift10V)
	fmt.Fprintf(&b, "Gain shift 20 V  : %g µV/V\n", c.GainShift20V)
	fmt.Fprintf(&b, "Gain shift 250 V : %g µV/V\n", c.GainShift250V)
	fmt.Fprintf(&b, "Gain shift 1000 V: %g µV/V\n", c.GainShift1000V)
	fmt.Fprintf(&b, "Resolution ratio : %g\n", c.ResolutionRatio)
	fmt.Fprintf(&b, "ADC gain         : %.8f mV", c.ADCGain*1e3)
	return b.String()
}

// gcalBatch builds a batched query for the calibration constants with the
// given index range, e.g. "GCAL 0,GCAL 1,...".
func gcalBatch(from, to int) string {
	cmds := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		cmds = append(cmds, "GCAL "+strconv.Itoa(i))
	}
	return strings.Join(cmds, ",")
}

// GetCalibrationConstants queries the 20 calibration constants and gain
// shifts with respect to the previous internal calibration.
//
// The query is split in two batches because the combined command exceeds
// the instrument's 127 byte input buffer; the record is assembled from
// the concatenated reply fields by fixed position.
func (d *Device) GetCalibrationConstants(ctx context.Context) (CalibrationConstants, error) {
	if !d.connected.Load() {
		return CalibrationConstants{}, ErrNotConnected
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	fields, err := d.Query(ctx, gcalBatch(0, 10), true)
	if err != nil {
		return CalibrationConstants{}, err
	}
	rest, err := d.Query(ctx, gcalBatch(10, 20), true)
	if err != nil {
		return CalibrationConstants{}, err
	}
	fields = append(fields, rest...)
	if len(fields) != 20 {
		return CalibrationConstants{}, fmt.Errorf("%w: expected 20 calibration constants, received %d", ErrUnexpectedReply, len(fields))
	}

	values := make([]float64, len(fields))
	for i, field := range fields {
		values[i], err = strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return CalibrationConstants{}, fmt.Errorf("%w: calibration constant %d: %q", ErrUnexpectedReply, i, field)
		}
	}

	return CalibrationConstants{
		Gain02V:         values[5],
		Gain2V:          values[4],
		Gain10V:         values[0],
		Gain20V:         values[1],
		Gain250V:        values[2],
		Gain1000V:       values[3],
		Offset10VPos:    values[6],
		Offset20VPos:    values[7],
		Offset250VPos:   values[8],
		Offset1000VPos:  values[9],
		Offset10VNeg:    values[10],
		Offset20VNeg:    values[11],
		Offset250VNeg:   values[12],
		Offset1000VNeg:  values[13],
		GainShift10V:    values[14],
		GainShift20V:    values[15],
		GainShift250V:   values[16],
		GainShift1000V:  values[17],
		ResolutionRatio: values[18],
		ADCGain:         values[19],
	}, nil
}
