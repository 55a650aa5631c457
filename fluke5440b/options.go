package fluke5440b

import (
	"errors"
	"time"

	"github.com/calbench/fluke5440b/logger"
)

// config holds the session configuration assembled by New from the
// functional options.
type config struct {
	// pollInterval is the interval between serial polls while waiting for
	// a state change without SRQ support. The default of 500 ms is tuned
	// to the instrument's response latency.
	pollInterval time.Duration

	// settleDelay is the delay between writing a command and serial
	// polling for an error condition. The instrument parses commands
	// slowly; the default is 200 ms.
	settleDelay time.Duration

	// strictStateCheck makes an observed device state outside a long
	// operation's documented whitelist fatal instead of merely logged.
	// Defaults to false.
	strictStateCheck bool

	// logger receives driver events. Defaults to the package-level
	// logger.
	logger logger.Logger
}

// Option represents a functional option for configuring a Device.
type Option interface {
	apply(*config) error
}

type optFunc struct {
	name      string
	applyFunc func(*config) error
}

func (o *optFunc) apply(cfg *config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithLogger sets the logger for the session.
// It returns an Option that updates the configuration with the provided logger.
//
// The default logger is the global logger instance. The logger's level can
// be changed at runtime via SetLevel, scoping log verbosity to this
// session instead of process-wide state.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithPollInterval sets the interval between serial polls while waiting
// for a device state change.
// An error is returned if the interval is outside the valid range
// (10 ms - 10 s).
//
// The default value is 500 ms, empirically tuned to the instrument's
// response latency. Lowering it increases bus chatter without making the
// instrument faster.
func WithPollInterval(interval time.Duration) Option {
	return newOptFunc("WithPollInterval", func(cfg *config) error {
		if interval < 10*time.Millisecond || interval > 10*time.Second {
			return errors.New("poll interval out of range [10ms, 10s]")
		}
		cfg.pollInterval = interval

		return nil
	})
}

// WithSettleDelay sets the delay between writing a command and serial
// polling the instrument for an error condition.
// An error is returned if the delay is outside the valid range
// (0 - 5 s).
//
// The default value is 200 ms; the instrument is slow in parsing
// commands, polling earlier reads a stale status byte.
func WithSettleDelay(delay time.Duration) Option {
	return newOptFunc("WithSettleDelay", func(cfg *config) error {
		if delay < 0 || delay > 5*time.Second {
			return errors.New("settle delay out of range [0, 5s]")
		}
		cfg.settleDelay = delay

		return nil
	})
}

// WithStrictStateCheck controls how the long-running operation state
// machines treat an observed device state outside the operation's
// documented whitelist.
//
// When disabled (the default) such states are logged as warnings and the
// operation keeps waiting; the firmware's exact behavior on an unlisted
// transient is not fully known. When enabled they fail the operation.
func WithStrictStateCheck(strict bool) Option {
	return newOptFunc("WithStrictStateCheck", func(cfg *config) error {
		cfg.strictStateCheck = strict

		return nil
	})
}
