// Package actuator drives the pump relay, the status LED and the mixing valve.
package actuator

import (
	"fmt"

	"github.com/sweeney/valve-controller/internal/gpio"
)

// Relay is a binary device (pump contactor, LED) on an output line.
// It caches the state it was last told to be in.
type Relay struct {
	name     string
	line     gpio.Output
	sense    gpio.Input
	expected bool
}

// NewRelay creates a relay on line. When sense is non-nil the confirmed
// state is read from it (for example an auxiliary contact on the contactor);
// otherwise the output line is read back.
func NewRelay(name string, line gpio.Output, sense gpio.Input) *Relay {
	return &Relay{name: name, line: line, sense: sense}
}

// Name returns the relay's name.
func (r *Relay) Name() string { return r.name }

// SetOn drives the relay and returns the state it confirms afterwards.
// Calling it repeatedly with the same value is harmless.
func (r *Relay) SetOn(on bool) (bool, error) {
	if err := r.line.Set(on); err != nil {
		return r.expected, fmt.Errorf("%s: %w", r.name, err)
	}
	r.expected = on
	return r.Sense()
}

// IsOn returns the cached expected state.
func (r *Relay) IsOn() bool { return r.expected }

// Sense reads the actual state of the relay.
func (r *Relay) Sense() (bool, error) {
	var (
		on  bool
		err error
	)
	if r.sense != nil {
		on, err = r.sense.Read()
	} else {
		on, err = r.line.Value()
	}
	if err != nil {
		return false, fmt.Errorf("%s: sense: %w", r.name, err)
	}
	return on, nil
}
