package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/sweeney/valve-controller/internal/actuator"
	"github.com/sweeney/valve-controller/internal/clock"
	"github.com/sweeney/valve-controller/internal/config"
	"github.com/sweeney/valve-controller/internal/control"
	"github.com/sweeney/valve-controller/internal/gpio"
	"github.com/sweeney/valve-controller/internal/sensor"
)

// hardware is the set of devices the daemon drives.
type hardware struct {
	temperature control.TemperatureSource
	thermostat  control.Thermostat
	pump        *actuator.Relay
	led         *actuator.Relay // nil when not wired
	power       *actuator.Relay // nil when not wired
	valve       *actuator.Valve
	closers     []io.Closer
}

// control returns the devices in the form the controller expects.
func (h *hardware) control() control.Hardware {
	hw := control.Hardware{
		Temperature: h.temperature,
		Thermostat:  h.thermostat,
		Pump:        h.pump,
		Valve:       h.valve,
	}
	if h.led != nil {
		hw.Indicator = h.led
	}
	if h.power != nil {
		hw.Power = h.power
	}
	return hw
}

// Close stops the valve motor and releases every line, last opened first.
func (h *hardware) Close() error {
	var errs []error
	if h.valve != nil {
		if err := h.valve.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop valve: %w", err))
		}
	}
	if h.power != nil {
		if _, err := h.power.SetOn(false); err != nil {
			errs = append(errs, fmt.Errorf("power off: %w", err))
		}
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openHardware is replaced in tests.
var openHardware = openGPIOHardware

func openGPIOHardware(cfg *config.Config, clk clock.Clock, progress actuator.Progress) (_ *hardware, err error) {
	g := cfg.GPIO
	chip, err := gpio.OpenChip(g.Chip, g.ChipTimeout)
	if err != nil {
		return nil, err
	}

	h := &hardware{closers: []io.Closer{chip}}
	defer func() {
		if err != nil {
			h.Close()
		}
	}()

	therm, err := chip.Input(g.ThermostatPin, gpio.InputConfig{PullUp: true, ActiveLow: true, Debounce: g.ThermostatDebounce})
	if err != nil {
		return nil, fmt.Errorf("thermostat: %w", err)
	}
	h.closers = append(h.closers, therm)
	h.thermostat = sensor.NewThermostat(therm)

	pump, err := chip.Output(g.PumpPin)
	if err != nil {
		return nil, fmt.Errorf("pump: %w", err)
	}
	h.closers = append(h.closers, pump)

	var sense gpio.Input
	if g.PumpSensePin != config.PinDisabled {
		in, err := chip.Input(g.PumpSensePin, gpio.InputConfig{PullUp: true, ActiveLow: true})
		if err != nil {
			return nil, fmt.Errorf("pump sense: %w", err)
		}
		h.closers = append(h.closers, in)
		sense = in
	}
	h.pump = actuator.NewRelay("pump", pump, sense)

	if g.LEDPin != config.PinDisabled {
		led, err := chip.Output(g.LEDPin)
		if err != nil {
			return nil, fmt.Errorf("led: %w", err)
		}
		h.closers = append(h.closers, led)
		h.led = actuator.NewRelay("led", led, nil)
	}

	if g.PowerPin != config.PinDisabled {
		power, err := chip.Output(g.PowerPin)
		if err != nil {
			return nil, fmt.Errorf("power: %w", err)
		}
		h.closers = append(h.closers, power)
		h.power = actuator.NewRelay("power", power, nil)
	}

	open, err := chip.Output(g.ValveOpenPin)
	if err != nil {
		return nil, fmt.Errorf("valve open line: %w", err)
	}
	h.closers = append(h.closers, open)
	closeLine, err := chip.Output(g.ValveClosePin)
	if err != nil {
		return nil, fmt.Errorf("valve close line: %w", err)
	}
	h.closers = append(h.closers, closeLine)
	h.valve = actuator.NewValve(open, closeLine, clk, cfg.ValveTiming(), progress)

	h.temperature = sensor.NewTemperatureSource(sensor.NewIIOADC(cfg.ADC.Path), cfg.Thermistor)
	return h, nil
}

// readout is the read-only view used by the state command. Lines are
// requested as inputs so nothing is driven.
type readout struct {
	temperature control.TemperatureSource
	thermostat  control.Thermostat
	pump        gpio.Input
	closers     []io.Closer
}

// Close releases every line.
func (p *readout) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openReadout is replaced in tests.
var openReadout = openGPIOReadout

func openGPIOReadout(cfg *config.Config) (_ *readout, err error) {
	g := cfg.GPIO
	chip, err := gpio.OpenChip(g.Chip, g.ChipTimeout)
	if err != nil {
		return nil, err
	}

	p := &readout{closers: []io.Closer{chip}}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	therm, err := chip.Input(g.ThermostatPin, gpio.InputConfig{PullUp: true, ActiveLow: true, Debounce: g.ThermostatDebounce})
	if err != nil {
		return nil, fmt.Errorf("thermostat: %w", err)
	}
	p.closers = append(p.closers, therm)
	p.thermostat = sensor.NewThermostat(therm)

	pumpCfg := gpio.InputConfig{}
	pumpPin := g.PumpPin
	if g.PumpSensePin != config.PinDisabled {
		pumpPin = g.PumpSensePin
		pumpCfg = gpio.InputConfig{PullUp: true, ActiveLow: true}
	}
	pump, err := chip.Input(pumpPin, pumpCfg)
	if err != nil {
		return nil, fmt.Errorf("pump: %w", err)
	}
	p.closers = append(p.closers, pump)
	p.pump = pump

	p.temperature = sensor.NewTemperatureSource(sensor.NewIIOADC(cfg.ADC.Path), cfg.Thermistor)
	return p, nil
}
