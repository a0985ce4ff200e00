package sensor

import (
	"errors"
	"math"
	"testing"
)

func TestCelsiusAtNominal(t *testing.T) {
	th := DefaultThermistor()

	// 527/1023 of the divider puts ~4994 Ω on the thermistor.
	got, err := Celsius(527, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-25) > 0.1 {
		t.Errorf("Celsius(527) = %.3f, want ~25", got)
	}
}

func TestCelsiusAtOverheatThreshold(t *testing.T) {
	got, err := Celsius(171, DefaultThermistor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got < 64.5 || got > 65.5 {
		t.Errorf("Celsius(171) = %.3f, want ~65", got)
	}
}

func TestCelsiusIsMonotonic(t *testing.T) {
	th := DefaultThermistor()
	prev := math.Inf(1)
	for raw := 1; raw < th.ADCMax; raw += 7 {
		c, err := Celsius(raw, th)
		if err != nil {
			t.Fatalf("raw %d: %v", raw, err)
		}
		if c >= prev {
			t.Fatalf("raw %d: %.3f °C not below previous %.3f °C", raw, c, prev)
		}
		prev = c
	}
}

func TestCelsiusOpenAndShort(t *testing.T) {
	th := DefaultThermistor()

	if _, err := Celsius(th.ADCMax, th); !errors.Is(err, ErrSensorOpen) {
		t.Errorf("full scale: expected ErrSensorOpen, got %v", err)
	}
	if _, err := Celsius(0, th); !errors.Is(err, ErrSensorShort) {
		t.Errorf("zero: expected ErrSensorShort, got %v", err)
	}
}

func TestResistance(t *testing.T) {
	th := Thermistor{ReferenceOhms: 4700, ADCMax: 1000}
	r, err := th.Resistance(500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != 4700 {
		t.Errorf("mid-scale resistance = %v, want 4700", r)
	}
}
