package flasher

import (
	"time"

	"github.com/moffa90/go-rkflash/hotplug"
)

// Default sector layout.
const (
	DefaultEraseStart = 0x2000
	DefaultEraseEnd   = 0x2040
	DefaultWriteStart = 0x2000
)

// Config holds the session and runner configuration.
type Config struct {
	// ProgressCallback is called to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// EraseStart is the first sector erased, one sector per command
	EraseStart uint32

	// EraseEnd is the exclusive end of the erase range
	EraseEnd uint32

	// WriteStart is the sector the first firmware chunk is written to
	WriteStart uint32

	// StrictResponses rejects response blocks with a bad signature, a tag
	// that does not match the command, or a non-zero status
	StrictResponses bool

	// PollInterval is the device presence scan period used by Runner
	PollInterval time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		EraseStart:   DefaultEraseStart,
		EraseEnd:     DefaultEraseEnd,
		WriteStart:   DefaultWriteStart,
		PollInterval: hotplug.DefaultPollInterval,
	}
}

// Option is a functional option for configuring the Session.
type Option func(*Config)

// WithProgressCallback sets a callback function to track flashing progress.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the session and runner.
//
// Example:
//
//	s, err := flasher.NewSession(ddr, usbPlug, table, flasher.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithEraseRange sets the erased sector range [start, end).
// An empty range skips erasing. Ranges with end < start are ignored.
//
// Example:
//
//	s, err := flasher.NewSession(ddr, usbPlug, table, flasher.WithEraseRange(0x2000, 0x2080))
func WithEraseRange(start, end uint32) Option {
	return func(c *Config) {
		if end >= start {
			c.EraseStart = start
			c.EraseEnd = end
		}
	}
}

// WithWriteStart sets the sector the firmware table is written from.
func WithWriteStart(sector uint32) Option {
	return func(c *Config) {
		c.WriteStart = sector
	}
}

// WithStrictResponses enables or disables response block validation.
// Default is false: response blocks are read and logged only.
func WithStrictResponses(strict bool) Option {
	return func(c *Config) {
		c.StrictResponses = strict
	}
}

// WithPollInterval sets how often Runner scans for device arrival and removal.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.PollInterval = interval
		}
	}
}
