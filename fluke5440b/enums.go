package fluke5440b

import "strconv"

// DeviceState represents the internal operating state of the instrument as
// reported by the GDNG status query. Exactly one state holds at any
// instant; transitions are driven by the instrument firmware in response
// to commands, not by the driver.
type DeviceState uint8

// Device states reported by the instrument.
const (
	StateIdle               DeviceState = 0
	StateCalibratingADC     DeviceState = 16
	StateZeroing10VPos      DeviceState = 32
	StateZeroing10VNeg      DeviceState = 33
	StateZeroing20VPos      DeviceState = 34
	StateZeroing20VNeg      DeviceState = 35
	StateZeroing250VPos     DeviceState = 36
	StateZeroing250VNeg     DeviceState = 37
	StateZeroing1000VPos    DeviceState = 38
	StateZeroing1000VNeg    DeviceState = 39
	StateCalGain10VPos      DeviceState = 48
	StateCalGain20VPos      DeviceState = 49
	StateCalGainHVPos       DeviceState = 50
	StateCalGainHVNeg       DeviceState = 51
	StateCalGain20VNeg      DeviceState = 52
	StateCalGain10VNeg      DeviceState = 53
	StateExtCal10V          DeviceState = 64
	StateExtCal20V          DeviceState = 65
	StateExtCal250V         DeviceState = 66
	StateExtCal1000V        DeviceState = 67
	StateExtCal2V           DeviceState = 68
	StateExtCal02V          DeviceState = 69
	StateExtCal10VNull      DeviceState = 80
	StateExtCal20VNull      DeviceState = 81
	StateExtCal250VNull     DeviceState = 82
	StateExtCal1000VNull    DeviceState = 83
	StateExtCal2VNull       DeviceState = 84
	StateExtCal02VNull      DeviceState = 85
	StateCalN1N2Ratio       DeviceState = 96
	StateSelfTestMainCPU    DeviceState = 112
	StateSelfTestFrontCPU   DeviceState = 113
	StateSelfTestGuardCPU   DeviceState = 114
	StateSelfTestLowVoltage DeviceState = 128
	StateSelfTestHVoltage   DeviceState = 129
	StateSelfTestOven       DeviceState = 130
	StatePrinting           DeviceState = 208
	StateWritingToNVRAM     DeviceState = 224
	StateResetting          DeviceState = 240
)

var deviceStateNames = map[DeviceState]string{
	StateIdle:               "idle",
	StateCalibratingADC:     "calibrating ADC",
	StateZeroing10VPos:      "zeroing +10V range",
	StateZeroing10VNeg:      "zeroing -10V range",
	StateZeroing20VPos:      "zeroing +20V range",
	StateZeroing20VNeg:      "zeroing -20V range",
	StateZeroing250VPos:     "zeroing +250V range",
	StateZeroing250VNeg:     "zeroing -250V range",
	StateZeroing1000VPos:    "zeroing +1000V range",
	StateZeroing1000VNeg:    "zeroing -1000V range",
	StateCalGain10VPos:      "calibrating +10V gain",
	StateCalGain20VPos:      "calibrating +20V gain",
	StateCalGainHVPos:       "calibrating positive high-voltage gain",
	StateCalGainHVNeg:       "calibrating negative high-voltage gain",
	StateCalGain20VNeg:      "calibrating -20V gain",
	StateCalGain10VNeg:      "calibrating -10V gain",
	StateExtCal10V:          "external calibration 10V",
	StateExtCal20V:          "external calibration 20V",
	StateExtCal250V:         "external calibration 250V",
	StateExtCal1000V:        "external calibration 1000V",
	StateExtCal2V:           "external calibration 2V",
	StateExtCal02V:          "external calibration 0.2V",
	StateExtCal10VNull:      "external calibration 10V null",
	StateExtCal20VNull:      "external calibration 20V null",
	StateExtCal250VNull:     "external calibration 250V null",
	StateExtCal1000VNull:    "external calibration 1000V null",
	StateExtCal2VNull:       "external calibration 2V null",
	StateExtCal02VNull:      "external calibration 0.2V null",
	StateCalN1N2Ratio:       "calibrating N1/N2 ratio",
	StateSelfTestMainCPU:    "self-test main CPU",
	StateSelfTestFrontCPU:   "self-test front panel CPU",
	StateSelfTestGuardCPU:   "self-test guard CPU",
	StateSelfTestLowVoltage: "self-test low voltage",
	StateSelfTestHVoltage:   "self-test high voltage",
	StateSelfTestOven:       "self-test oven",
	StatePrinting:           "printing",
	StateWritingToNVRAM:     "writing to NVRAM",
	StateResetting:          "resetting",
}

// IsIdle returns true if the instrument reports no job in progress.
func (s DeviceState) IsIdle() bool { return s == StateIdle }

// IsValid returns true if the value is one of the states the instrument
// documents.
func (s DeviceState) IsValid() bool {
	_, ok := deviceStateNames[s]
	return ok
}

// String returns a human readable description of the state.
func (s DeviceState) String() string {
	if name, ok := deviceStateNames[s]; ok {
		return name
	}
	return "unknown state " + strconv.Itoa(int(s))
}

// TerminatorType selects the line terminator appended by the instrument to
// its replies.
type TerminatorType uint8

// Available line terminators.
const (
	TerminatorEOI     TerminatorType = 0
	TerminatorCRLFEOI TerminatorType = 1
	TerminatorLFEOI   TerminatorType = 2
	TerminatorCRLF    TerminatorType = 3
	TerminatorLF      TerminatorType = 4
)

// IsValid returns true if the value is one of the five defined terminator
// kinds.
func (t TerminatorType) IsValid() bool { return t <= TerminatorLF }

func (t TerminatorType) String() string {
	switch t {
	case TerminatorEOI:
		return "EOI"
	case TerminatorCRLFEOI:
		return "CR LF EOI"
	case TerminatorLFEOI:
		return "LF EOI"
	case TerminatorCRLF:
		return "CR LF"
	case TerminatorLF:
		return "LF"
	default:
		return "unknown terminator " + strconv.Itoa(int(t))
	}
}

// SeparatorType selects the character the instrument uses to separate
// multiple reply values.
type SeparatorType uint8

// Available reply separators.
const (
	SeparatorComma SeparatorType = 0
	SeparatorColon SeparatorType = 1
)

// IsValid returns true if the value is a defined separator kind.
func (s SeparatorType) IsValid() bool { return s <= SeparatorColon }

func (s SeparatorType) String() string {
	switch s {
	case SeparatorComma:
		return "comma"
	case SeparatorColon:
		return "colon"
	default:
		return "unknown separator " + strconv.Itoa(int(s))
	}
}

// ModeType selects the output mode. Voltage boost drives a connected Fluke
// 5205A power amplifier, current boost a Fluke 5220A transconductance
// amplifier.
type ModeType string

// Output modes. The values are the command mnemonics sent on the wire.
const (
	ModeNormal       ModeType = "BSTO"
	ModeVoltageBoost ModeType = "BSTV"
	ModeCurrentBoost ModeType = "BSTC"
)

// IsValid returns true if the mode is one of the defined output modes.
func (m ModeType) IsValid() bool {
	return m == ModeNormal || m == ModeVoltageBoost || m == ModeCurrentBoost
}

// ErrorCode is an operational error reported by the instrument via the
// GERR query. The wire representation shares its integer space with
// SelfTestErrorCode; which space applies depends on the command that
// caused the error.
type ErrorCode int

// General operational error codes.
const (
	ErrCodeNone                ErrorCode = 0
	ErrCodeBoostConnection     ErrorCode = 144
	ErrCodeBoostMissing        ErrorCode = 145
	ErrCodeBoostVoltageTrip    ErrorCode = 146
	ErrCodeBoostCurrentTrip    ErrorCode = 147
	ErrCodeGPIBHandshake       ErrorCode = 152
	ErrCodeTerminator          ErrorCode = 153
	ErrCodeSeparator           ErrorCode = 154
	ErrCodeUnknownCommand      ErrorCode = 155
	ErrCodeInvalidParameter    ErrorCode = 156
	ErrCodeBufferOverflow      ErrorCode = 157
	ErrCodeInvalidCharacter    ErrorCode = 158
	ErrCodeRS232               ErrorCode = 160
	ErrCodeParameterOutOfRange ErrorCode = 168
	ErrCodeOutputOutsideLimits ErrorCode = 169
	ErrCodeLimitOutOfRange     ErrorCode = 170
	ErrCodeDividerOutOfRange   ErrorCode = 171
	ErrCodeInvalidSenseMode    ErrorCode = 172
	ErrCodeInvalidGuardMode    ErrorCode = 173
	ErrCodeInvalidCommand      ErrorCode = 175
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNone:                "no error",
	ErrCodeBoostConnection:     "boost interface connection error",
	ErrCodeBoostMissing:        "boost interface missing",
	ErrCodeBoostVoltageTrip:    "boost interface voltage trip",
	ErrCodeBoostCurrentTrip:    "boost interface current trip",
	ErrCodeGPIBHandshake:       "GPIB handshake error",
	ErrCodeTerminator:          "terminator error",
	ErrCodeSeparator:           "separator error",
	ErrCodeUnknownCommand:      "unknown command",
	ErrCodeInvalidParameter:    "invalid parameter",
	ErrCodeBufferOverflow:      "buffer overflow",
	ErrCodeInvalidCharacter:    "invalid character",
	ErrCodeRS232:               "RS-232 error",
	ErrCodeParameterOutOfRange: "parameter out of range",
	ErrCodeOutputOutsideLimits: "output outside limits",
	ErrCodeLimitOutOfRange:     "limit out of range",
	ErrCodeDividerOutOfRange:   "divider out of range",
	ErrCodeInvalidSenseMode:    "invalid sense mode",
	ErrCodeInvalidGuardMode:    "invalid guard mode",
	ErrCodeInvalidCommand:      "invalid command",
}

// IsValid returns true if the value belongs to the general error-code
// space.
func (c ErrorCode) IsValid() bool {
	_, ok := errorCodeNames[c]
	return ok
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "unknown error code " + strconv.Itoa(int(c))
}

// SelfTestErrorCode is a diagnostic fault code reported during the three
// self-test sequences. It is distinct from the general ErrorCode space
// even though both share the same wire representation.
type SelfTestErrorCode int

// Self-test fault codes, grouped by the board under test.
const (
	SelfTestOK               SelfTestErrorCode = 0
	SelfTestMainCPUROM       SelfTestErrorCode = 1
	SelfTestMainCPURAM       SelfTestErrorCode = 2
	SelfTestMainCPUNVRAM     SelfTestErrorCode = 3
	SelfTestFrontPanelROM    SelfTestErrorCode = 17
	SelfTestFrontPanelRAM    SelfTestErrorCode = 18
	SelfTestGuardCPUROM      SelfTestErrorCode = 33
	SelfTestGuardCPURAM      SelfTestErrorCode = 34
	SelfTestADCZero          SelfTestErrorCode = 49
	SelfTestADCGain          SelfTestErrorCode = 50
	SelfTestLowVoltageOutput SelfTestErrorCode = 65
	SelfTestOvenTemperature  SelfTestErrorCode = 66
	SelfTestHVOutput         SelfTestErrorCode = 81
)

var selfTestErrorCodeNames = map[SelfTestErrorCode]string{
	SelfTestOK:               "no fault",
	SelfTestMainCPUROM:       "main CPU ROM checksum fault",
	SelfTestMainCPURAM:       "main CPU RAM fault",
	SelfTestMainCPUNVRAM:     "main CPU NVRAM fault",
	SelfTestFrontPanelROM:    "front panel CPU ROM checksum fault",
	SelfTestFrontPanelRAM:    "front panel CPU RAM fault",
	SelfTestGuardCPUROM:      "guard CPU ROM checksum fault",
	SelfTestGuardCPURAM:      "guard CPU RAM fault",
	SelfTestADCZero:          "ADC zero fault",
	SelfTestADCGain:          "ADC gain fault",
	SelfTestLowVoltageOutput: "low voltage output fault",
	SelfTestOvenTemperature:  "reference oven temperature fault",
	SelfTestHVOutput:         "high voltage output fault",
}

// String returns a description of the fault. Unknown codes are still
// printable so an undocumented firmware fault does not fail decoding.
func (c SelfTestErrorCode) String() string {
	if name, ok := selfTestErrorCodeNames[c]; ok {
		return name
	}
	return "self-test fault " + strconv.Itoa(int(c))
}
