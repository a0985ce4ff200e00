package sensor

import (
	"fmt"

	"github.com/sweeney/valve-controller/internal/gpio"
)

// TemperatureSource reads the water temperature from a thermistor divider.
type TemperatureSource struct {
	adc        ADC
	thermistor Thermistor
}

// NewTemperatureSource creates a TemperatureSource over adc.
func NewTemperatureSource(adc ADC, t Thermistor) *TemperatureSource {
	return &TemperatureSource{adc: adc, thermistor: t}
}

// Read samples the ADC and returns degrees Celsius. Nothing is cached.
func (s *TemperatureSource) Read() (float64, error) {
	raw, err := s.adc.ReadRaw()
	if err != nil {
		return 0, err
	}
	c, err := Celsius(raw, s.thermistor)
	if err != nil {
		return 0, fmt.Errorf("raw sample %d: %w", raw, err)
	}
	return c, nil
}

// Thermostat reads the external thermostat contact.
type Thermostat struct {
	in gpio.Input
}

// NewThermostat wraps a debounced input line. The line must be requested
// active-low so an asserted (closed) contact reads true.
func NewThermostat(in gpio.Input) *Thermostat {
	return &Thermostat{in: in}
}

// CallingForHeat reports whether the contact is closed.
func (t *Thermostat) CallingForHeat() (bool, error) {
	on, err := t.in.Read()
	if err != nil {
		return false, fmt.Errorf("read thermostat: %w", err)
	}
	return on, nil
}
