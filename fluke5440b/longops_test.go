package fluke5440b

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/calbench/fluke5440b/logger"
)

func TestSelftestDigital(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["TSTD"] = script{states: []int{
		int(StateSelfTestMainCPU),
		int(StateSelfTestFrontCPU),
		int(StateSelfTestGuardCPU),
		int(StateIdle),
	}}
	dev := newConnectedDevice(t, ft)

	require.NoError(t, dev.SelftestDigital(context.Background()))

	// The state-change interrupt is enabled for the duration of the test
	// and restored afterwards.
	history := ft.srqMaskHistory()
	assert.Equal(t, []int{int(SrqStateChange), int(SrqNone)}, history[1:])
	assert.Contains(t, ft.writtenCommands(), "TSTD")
}

func TestSelftestAnalog_Fault(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["TSTA"] = script{
		states:     []int{int(StateCalibratingADC)},
		waitFaults: []int{0, int(SelfTestOvenTemperature)},
	}
	dev := newConnectedDevice(t, ft)

	err := dev.SelftestAnalog(context.Background())

	var stErr *SelftestError
	require.ErrorAs(t, err, &stErr)
	assert.Equal(t, "analog", stErr.Test)
	assert.Equal(t, SelfTestOvenTemperature, stErr.Code)

	// The mask is restored even on failure.
	assert.Equal(t, int(SrqNone), ft.srqMask)
}

func TestSelftestHV(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["TSTH"] = script{states: []int{
		int(StateCalibratingADC),
		int(StateSelfTestHVoltage),
		int(StateIdle),
	}}
	dev := newConnectedDevice(t, ft)

	require.NoError(t, dev.SelftestHV(context.Background()))
	assert.Contains(t, ft.writtenCommands(), "TSTH")
}

func TestSelftestAll_StopsAtFirstFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["TSTD"] = script{states: []int{int(StateIdle)}}
	ft.scripts["TSTA"] = script{
		states:     []int{int(StateCalibratingADC)},
		waitFaults: []int{0, int(SelfTestADCZero)},
	}
	dev := newConnectedDevice(t, ft)

	err := dev.SelftestAll(context.Background())

	var stErr *SelftestError
	require.ErrorAs(t, err, &stErr)
	assert.Equal(t, "analog", stErr.Test)
	assert.NotContains(t, ft.writtenCommands(), "TSTH")
}

func TestSelftest_UnexpectedStateStrict(t *testing.T) {
	ft := newFakeTransport()
	// The low voltage test state never occurs during the digital test.
	ft.scripts["TSTD"] = script{states: []int{
		int(StateSelfTestLowVoltage),
		int(StateIdle),
	}}
	dev := newConnectedDevice(t, ft, WithStrictStateCheck(true))

	err := dev.SelftestDigital(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedReply)
	assert.Equal(t, int(SrqNone), ft.srqMask)
}

func TestSelftest_UnexpectedStateLenient(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["TSTD"] = script{states: []int{
		int(StateSelfTestLowVoltage),
		int(StateIdle),
	}}

	ml := logger.NewMockLogger()
	ml.On("Debug", mock.Anything, mock.Anything).Maybe()
	ml.On("Info", mock.Anything, mock.Anything).Maybe()
	ml.On("Warn", mock.Anything, mock.Anything)
	dev := newTestDevice(t, ft, WithLogger(ml))
	require.NoError(t, dev.Connect(context.Background()))

	// Without strict checking the unexpected state is only logged.
	assert.NoError(t, dev.SelftestDigital(context.Background()))
	ml.AssertCalled(t, "Warn", "unexpected state during operation",
		[]any{"operation", "digital self-test", "state", StateSelfTestLowVoltage})
}

func TestSelftest_RestoresMaskOnTransportFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["TSTD"] = script{states: []int{int(StateSelfTestMainCPU), int(StateIdle)}}
	ft.waitErr = errors.New("adapter lost")
	dev := newConnectedDevice(t, ft)

	err := dev.SelftestDigital(context.Background())
	require.ErrorContains(t, err, "adapter lost")

	history := ft.srqMaskHistory()
	assert.Equal(t, int(SrqNone), history[len(history)-1])
}

func TestACal(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["CALI"] = script{states: []int{
		int(StateCalibratingADC),
		int(StateZeroing10VPos),
		int(StateCalGain10VPos),
		int(StateWritingToNVRAM),
		int(StateIdle),
	}}
	dev := newConnectedDevice(t, ft)

	var observed []DeviceState
	dev.OnStateChange(func(state DeviceState) {
		observed = append(observed, state)
	})

	require.NoError(t, dev.ACal(context.Background()))

	assert.Equal(t, []DeviceState{
		StateCalibratingADC,
		StateZeroing10VPos,
		StateCalGain10VPos,
		StateWritingToNVRAM,
	}, observed)
	history := ft.srqMaskHistory()
	assert.Equal(t, []int{int(SrqStateChange), int(SrqNone)}, history[1:])
}

func TestACal_HandshakeErrorIgnored(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["CALI"] = script{
		states:     []int{int(StateCalibratingADC), int(StateIdle)},
		waitFaults: []int{int(ErrCodeGPIBHandshake)},
	}
	dev := newConnectedDevice(t, ft)

	// Chatty adapters produce spurious handshake errors while polling;
	// the calibration keeps running.
	assert.NoError(t, dev.ACal(context.Background()))
}

func TestACal_DeviceError(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["CALI"] = script{
		states:     []int{int(StateCalibratingADC)},
		waitFaults: []int{0, int(ErrCodeParameterOutOfRange)},
	}
	dev := newConnectedDevice(t, ft)

	err := dev.ACal(context.Background())

	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, ErrCodeParameterOutOfRange, devErr.Code)
	assert.Equal(t, int(SrqNone), ft.srqMask)
}

func TestSetRS232BaudRate(t *testing.T) {
	ft := newFakeTransport()
	ft.scripts["SBDR"] = script{states: []int{int(StateWritingToNVRAM), int(StateIdle)}}
	dev := newConnectedDevice(t, ft)

	require.NoError(t, dev.SetRS232BaudRate(context.Background(), 4800))

	writes := ft.writtenCommands()
	assert.Contains(t, writes, "SBDR 11")
	// The interrupt is enabled after the command, then restored.
	assert.Less(t, indexOf(writes, "SBDR 11"), indexOf(writes, "SSRQ 4"))
	assert.Equal(t, int(SrqNone), ft.srqMask)

	rate, err := dev.GetRS232BaudRate(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4800.0, rate, 1e-9)
}

func TestSetRS232BaudRate_InvalidRate(t *testing.T) {
	ft := newFakeTransport()
	dev := newConnectedDevice(t, ft)
	before := len(ft.writtenCommands())

	assert.ErrorIs(t, dev.SetRS232BaudRate(context.Background(), 115200), ErrInvalidBaudRate)
	assert.ErrorIs(t, dev.SetRS232BaudRate(context.Background(), 0), ErrInvalidBaudRate)
	assert.Len(t, ft.writtenCommands(), before)
}

func TestStateSet(t *testing.T) {
	set := newStateSet(StateIdle, StateCalibratingADC)
	assert.True(t, set.contains(StateIdle))
	assert.True(t, set.contains(StateCalibratingADC))
	assert.False(t, set.contains(StatePrinting))
}
