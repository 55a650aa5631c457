package fluke5440b

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/calbench/fluke5440b/gpib"
)

// script is loaded into the fake transport when its trigger command is
// written: states are popped by successive GDNG queries, waitFaults fire
// an error condition on successive Wait calls (0 means no fault).
type script struct {
	states     []int
	waitFaults []int
}

// fakeTransport is an in-memory stand-in for a GPIB transport, modeling
// just enough of the calibrator's command set and status byte to drive
// the session: GDNG pops a scripted state queue, GERR reports and clears
// a pending error, query commands push their reply onto a line queue.
type fakeTransport struct {
	mu sync.Mutex

	connected bool
	writes    []string
	replies   []string

	state      int
	stateQueue []int
	waitFaults []int
	waitErr    error

	errorFlag bool
	errCode   int

	srqMask    int
	srqHistory []int
	terminator int
	separator  int
	output     string
	version    string
	voltPos    float64
	voltNeg    float64
	currPos    float64
	currNeg    float64
	currSingle bool
	baudIndex  int
	status     int
	constants  []float64

	// gcalGarbage makes GCAL queries return a non-numeric field.
	gcalGarbage bool

	// failures maps a command mnemonic to the general error code raised
	// when it is written.
	failures map[string]int
	scripts  map[string]script

	eotEnabled bool
	cleared    bool
	localed    bool
}

var (
	_ gpib.Transport = (*fakeTransport)(nil)
	_ gpib.EOTSetter = (*fakeTransport)(nil)
)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		terminator: int(TerminatorLFEOI),
		output:     "0.0",
		version:    "4.0",
		voltPos:    1100,
		voltNeg:    -1100,
		currPos:    65,
		currNeg:    -65,
		baudIndex:  12,
		failures:   map[string]int{},
		scripts:    map[string]script{},
		eotEnabled: true,
	}
}

func (t *fakeTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *fakeTransport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *fakeTransport) Write(_ context.Context, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return gpib.ErrNotConnected
	}

	cmd := string(p)
	t.writes = append(t.writes, cmd)

	var responses []string
	for _, sub := range strings.Split(cmd, ",") {
		if reply, ok := t.handle(strings.TrimSpace(sub)); ok {
			responses = append(responses, reply)
		}
	}
	if len(responses) > 0 {
		t.replies = append(t.replies, strings.Join(responses, ","))
	}

	return nil
}

func (t *fakeTransport) handle(cmd string) (string, bool) {
	mnemonic, arg, _ := strings.Cut(cmd, " ")
	if code, ok := t.failures[mnemonic]; ok {
		t.errorFlag = true
		t.errCode = code
		return "", false
	}
	if sc, ok := t.scripts[mnemonic]; ok {
		t.stateQueue = append(t.stateQueue, sc.states...)
		t.waitFaults = append(t.waitFaults, sc.waitFaults...)
	}

	switch mnemonic {
	case "GDNG":
		if len(t.stateQueue) > 0 {
			t.state = t.stateQueue[0]
			t.stateQueue = t.stateQueue[1:]
		}
		return strconv.Itoa(t.state), true
	case "GERR":
		code := t.errCode
		t.errorFlag = false
		t.errCode = 0
		return strconv.Itoa(code), true
	case "SSRQ":
		t.srqMask, _ = strconv.Atoi(arg)
		t.srqHistory = append(t.srqHistory, t.srqMask)
	case "GSRQ":
		return strconv.Itoa(t.srqMask), true
	case "STRM":
		t.terminator, _ = strconv.Atoi(arg)
	case "GTRM":
		return strconv.Itoa(t.terminator), true
	case "SSEP":
		t.separator, _ = strconv.Atoi(arg)
	case "GSEP":
		return strconv.Itoa(t.separator), true
	case "SOUT":
		t.output = arg
	case "GOUT":
		return t.output, true
	case "GVRS":
		return t.version, true
	case "SVLM":
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			if v >= 0 {
				t.voltPos = v
			} else {
				t.voltNeg = v
			}
		}
	case "GVLM":
		// Positive limit first on the wire.
		return fmt.Sprintf("%g,%g", t.voltPos, t.voltNeg), true
	case "SCLM":
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			if v >= 0 {
				t.currPos = v
			} else {
				t.currNeg = v
			}
		}
	case "GCLM":
		if t.currSingle {
			return fmt.Sprintf("%g", t.currPos), true
		}
		return fmt.Sprintf("%g,%g", t.currPos, t.currNeg), true
	case "GBDR":
		return strconv.Itoa(t.baudIndex), true
	case "SBDR":
		t.baudIndex, _ = strconv.Atoi(arg)
	case "GSTS":
		return strconv.Itoa(t.status), true
	case "GCAL":
		if t.gcalGarbage {
			return "bogus", true
		}
		i, _ := strconv.Atoi(arg)
		return fmt.Sprintf("%.8E", t.constants[i]), true
	}

	return "", false
}

func (t *fakeTransport) Read(_ context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil, gpib.ErrNotConnected
	}
	if len(t.replies) == 0 {
		return nil, fmt.Errorf("fakeTransport: read with no reply queued, writes so far: %v", t.writes)
	}
	reply := t.replies[0]
	t.replies = t.replies[1:]
	return []byte(reply + "\n"), nil
}

func (t *fakeTransport) SerialPoll(_ context.Context) (uint8, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return 0, gpib.ErrNotConnected
	}
	var bits uint8
	if len(t.stateQueue) > 0 {
		bits |= uint8(SerialPollStateChange)
	}
	if len(t.replies) > 0 {
		bits |= uint8(SerialPollMsgReady)
	}
	if t.errorFlag {
		bits |= uint8(SerialPollError)
	}
	return bits, nil
}

func (t *fakeTransport) Clear(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return gpib.ErrNotConnected
	}
	t.cleared = true
	t.state = 0
	t.stateQueue = nil
	t.replies = nil
	t.errorFlag = false
	return nil
}

func (t *fakeTransport) Local(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return gpib.ErrNotConnected
	}
	t.localed = true
	return nil
}

func (t *fakeTransport) Wait(ctx context.Context, _ gpib.WaitEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.waitErr != nil {
		return t.waitErr
	}
	if len(t.waitFaults) > 0 {
		code := t.waitFaults[0]
		t.waitFaults = t.waitFaults[1:]
		if code != 0 {
			t.errorFlag = true
			t.errCode = code
		}
	}
	return nil
}

func (t *fakeTransport) SetEOT(_ context.Context, enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eotEnabled = enabled
	return nil
}

func (t *fakeTransport) writtenCommands() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

func (t *fakeTransport) srqMaskHistory() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.srqHistory...)
}
