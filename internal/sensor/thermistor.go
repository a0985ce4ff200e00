// Package sensor converts raw hardware samples into controller inputs:
// water temperature from an NTC thermistor divider and the thermostat contact.
package sensor

import (
	"errors"
	"math"
)

var (
	// ErrSensorOpen means the divider reads full scale (thermistor disconnected).
	ErrSensorOpen = errors.New("sensor: thermistor open circuit")
	// ErrSensorShort means the divider reads zero (thermistor shorted).
	ErrSensorShort = errors.New("sensor: thermistor short circuit")
)

const kelvinOffset = 273.15

// Thermistor holds the constants of an NTC thermistor on a voltage divider.
type Thermistor struct {
	ReferenceOhms float64 `yaml:"reference_ohms"` // series resistor
	NominalOhms   float64 `yaml:"nominal_ohms"`   // thermistor resistance at NominalC
	NominalC      float64 `yaml:"nominal_c"`
	Beta          float64 `yaml:"beta"`
	ADCMax        int     `yaml:"adc_max"` // full-scale reading
}

// DefaultThermistor returns the constants of the appliance's 5k NTC thermistor.
func DefaultThermistor() Thermistor {
	return Thermistor{
		ReferenceOhms: 4700,
		NominalOhms:   5000,
		NominalC:      25,
		Beta:          4200,
		ADCMax:        1023,
	}
}

// Resistance returns the thermistor resistance for a raw sample.
func (t Thermistor) Resistance(raw int) (float64, error) {
	if raw >= t.ADCMax {
		return 0, ErrSensorOpen
	}
	if raw <= 0 {
		return 0, ErrSensorShort
	}
	return t.ReferenceOhms * float64(raw) / float64(t.ADCMax-raw), nil
}

// Celsius converts a raw ADC sample using the B-parameter equation
// 1/T = 1/T0 + ln(R/R0)/B.
func Celsius(raw int, t Thermistor) (float64, error) {
	r, err := t.Resistance(raw)
	if err != nil {
		return 0, err
	}
	t0 := t.NominalC + kelvinOffset
	kelvin := 1.0 / (1.0/t0 + math.Log(r/t.NominalOhms)/t.Beta)
	return kelvin - kelvinOffset, nil
}
