// Package fluke5440b implements a driver for the Fluke 5440B precision
// voltage calibrator, abstracting the instrument's 4-letter mnemonic
// command protocol behind a typed method interface.
//
// The driver owns a single gpib.Transport for its lifetime and layers on
// top of it:
//   - command/reply framing with the instrument's 127 byte input buffer
//     limit and configurable line terminator/separator handling,
//   - an exclusive-access session lock serializing every multi-step
//     protocol exchange on the single physical channel,
//   - interpretation of the serial-poll status register and the two
//     overlapping error-code spaces (general operation vs. self-test),
//   - the long-running operation state machines for the three self-tests,
//     internal auto-calibration (ACAL) and the RS-232 baud-rate NVRAM
//     write.
//
// A Device is inert until Connect is called and remains usable after
// Disconnect failed or was never called. All blocking methods accept a
// context.Context; cancelling the context of a long-running operation
// still restores the instrument's SRQ mask before returning.
//
// Example Usage:
//
//	tr, err := prologix.NewLAN("192.168.1.100:1234", 7)
//	if err != nil { ... }
//
//	dev, err := fluke5440b.New(tr)
//	if err != nil { ... }
//
//	if err := dev.Connect(ctx); err != nil { ... }
//	defer dev.Disconnect(context.Background())
//
//	if err := dev.SetOutput(ctx, 10.0); err != nil { ... }
//	if err := dev.SetOutputEnabled(ctx, true); err != nil { ... }
package fluke5440b
