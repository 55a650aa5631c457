package prologix

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calbench/fluke5440b/gpib"
)

// fakeConn is an in-memory stand-in for the adapter link: everything
// written is recorded, reads consume a preloaded script.
type fakeConn struct {
	mu     sync.Mutex
	wr     bytes.Buffer
	rd     bytes.Buffer
	closed int
	resets int
}

func (c *fakeConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rd.Read(p)
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wr.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) ResetInputBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return nil
}

func (c *fakeConn) written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wr.String()
}

func (c *fakeConn) preload(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rd.WriteString(s)
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakeConn) {
	t.Helper()

	conn := &fakeConn{}
	ctl, err := newController(7, func(_ context.Context) (io.ReadWriteCloser, error) {
		return conn, nil
	}, opts...)
	require.NoError(t, err)

	return ctl, conn
}

func newConnectedController(t *testing.T, opts ...Option) (*Controller, *fakeConn) {
	t.Helper()

	ctl, conn := newTestController(t, opts...)
	require.NoError(t, ctl.Connect(context.Background()))
	conn.mu.Lock()
	conn.wr.Reset() // drop the init sequence, tests assert their own traffic
	conn.mu.Unlock()

	return ctl, conn
}

func TestNewLAN_InvalidAddress(t *testing.T) {
	ctl, err := NewLAN("192.168.1.42:1234", 31)
	assert.Error(t, err)
	assert.Nil(t, ctl)
}

func TestNewVCP_InvalidAddress(t *testing.T) {
	ctl, err := NewVCP("/dev/ttyUSB0", -1)
	assert.Error(t, err)
	assert.Nil(t, ctl)
}

func TestConnect_SendsInitSequence(t *testing.T) {
	ctl, conn := newTestController(t)
	require.NoError(t, ctl.Connect(context.Background()))

	expected := strings.Join([]string{
		"++savecfg 0",
		"++addr 7",
		"++mode 1",
		"++auto 0",
		"++eoi 1",
		"++eos 2",
		"++read_tmo_ms 500",
		"++eot_char 10",
		"++eot_enable 1",
	}, "\n") + "\n"
	assert.Equal(t, expected, conn.written())
}

func TestConnect_Idempotent(t *testing.T) {
	ctl, conn := newTestController(t)
	ctx := context.Background()

	require.NoError(t, ctl.Connect(ctx))
	before := conn.written()
	require.NoError(t, ctl.Connect(ctx))
	assert.Equal(t, before, conn.written())
}

func TestWrite(t *testing.T) {
	ctl, conn := newConnectedController(t)

	require.NoError(t, ctl.Write(context.Background(), []byte("SOUT 10.000000")))
	assert.Equal(t, "SOUT 10.000000\n", conn.written())
}

func TestWrite_StripsTrailingNewline(t *testing.T) {
	ctl, conn := newConnectedController(t)

	require.NoError(t, ctl.Write(context.Background(), []byte("GDNG\r\n")))
	assert.Equal(t, "GDNG\n", conn.written())
}

func TestWrite_NotConnected(t *testing.T) {
	ctl, _ := newTestController(t)
	assert.ErrorIs(t, ctl.Write(context.Background(), []byte("GDNG")), gpib.ErrNotConnected)
}

func TestRead(t *testing.T) {
	ctl, conn := newConnectedController(t)
	conn.preload("+1.00000000E+01\n")

	line, err := ctl.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "+1.00000000E+01\n", string(line))
	assert.Equal(t, "++read eoi\n", conn.written())
}

func TestSerialPoll(t *testing.T) {
	ctl, conn := newConnectedController(t)
	conn.preload("96\n")

	status, err := ctl.SerialPoll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(96), status)
	assert.Equal(t, "++spoll\n", conn.written())
}

func TestSerialPoll_OutOfRange(t *testing.T) {
	ctl, conn := newConnectedController(t)
	conn.preload("300\n")

	_, err := ctl.SerialPoll(context.Background())
	assert.Error(t, err)
}

func TestWait_SRQAsserted(t *testing.T) {
	ctl, conn := newConnectedController(t,
		WithSRQPollInterval(time.Millisecond),
		WithWaitTimeout(time.Second),
	)
	conn.preload("0\n0\n1\n")

	require.NoError(t, ctl.Wait(context.Background(), gpib.WaitRQS|gpib.WaitTimeout))
	assert.Equal(t, 3, strings.Count(conn.written(), "++srq\n"))
}

func TestWait_Timeout(t *testing.T) {
	ctl, conn := newConnectedController(t,
		WithSRQPollInterval(time.Millisecond),
		WithWaitTimeout(5*time.Millisecond),
	)
	conn.preload(strings.Repeat("0\n", 500))

	err := ctl.Wait(context.Background(), gpib.WaitRQS|gpib.WaitTimeout)
	assert.ErrorIs(t, err, gpib.ErrWaitTimeout)
}

func TestWait_UnsupportedMask(t *testing.T) {
	ctl, _ := newConnectedController(t)
	assert.Error(t, ctl.Wait(context.Background(), gpib.WaitTimeout))
}

func TestWait_ContextCanceled(t *testing.T) {
	ctl, conn := newConnectedController(t,
		WithSRQPollInterval(time.Millisecond),
		WithWaitTimeout(time.Second),
	)
	conn.preload(strings.Repeat("0\n", 500))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ctl.Wait(ctx, gpib.WaitRQS|gpib.WaitTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClear(t *testing.T) {
	ctl, conn := newConnectedController(t)
	require.NoError(t, ctl.Clear(context.Background()))
	assert.Equal(t, "++clr\n", conn.written())
}

func TestLocal(t *testing.T) {
	ctl, conn := newConnectedController(t)
	require.NoError(t, ctl.Local(context.Background()))
	assert.Equal(t, "++loc\n", conn.written())
}

func TestSetEOT(t *testing.T) {
	ctl, conn := newConnectedController(t)
	ctx := context.Background()

	require.NoError(t, ctl.SetEOT(ctx, false))
	require.NoError(t, ctl.SetEOT(ctx, true))
	assert.Equal(t, "++eot_enable 0\n++eot_enable 1\n", conn.written())
}

func TestDisconnect_Idempotent(t *testing.T) {
	ctl, conn := newConnectedController(t)
	ctx := context.Background()

	require.NoError(t, ctl.Disconnect(ctx))
	assert.Equal(t, 1, conn.closed)
	assert.Equal(t, 1, conn.resets)

	// A second disconnect and a disconnect on a never-connected
	// controller are no-ops.
	require.NoError(t, ctl.Disconnect(ctx))
	assert.Equal(t, 1, conn.closed)

	fresh, _ := newTestController(t)
	assert.NoError(t, fresh.Disconnect(ctx))
}
