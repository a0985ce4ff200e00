// Package gpio provides digital line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Input reads a single digital input line.
type Input interface {
	// Read returns the logical level of the line. Active-low lines are
	// already inverted, so true always means "asserted".
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// Output drives a single digital output line.
type Output interface {
	// Set drives the line high (true) or low (false).
	Set(on bool) error

	// Value reads back the level currently on the line.
	Value() (bool, error)

	// Close de-energizes and releases the line.
	Close() error
}

// InputConfig describes how an input line is requested.
type InputConfig struct {
	PullUp    bool
	ActiveLow bool
	Debounce  time.Duration
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pin definitions (BCM numbering)
const (
	DefaultPinThermostat = 17
	DefaultPinPump       = 27
	DefaultPinLED        = 22
	DefaultPinValveOpen  = 23
	DefaultPinValveClose = 24
)
